package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/karalabe/hid"
	"github.com/tarm/serial"
	"hemtjan.st/watt/fnirsi"
	"lib.hemtjan.st/client"
	"lib.hemtjan.st/device"
	"lib.hemtjan.st/feature"
	"lib.hemtjan.st/transport/mqtt"
	"log"
	"os"
	"time"
)

const (

	// Re-use currentPower from hemtjanst for the live power draw on VBUS
	currentPower = string(feature.CurrentPower)
	energyUsed   = string(feature.EnergyUsed)
	// Custom features for the quantities hemtjanst has no name for
	busVoltage = "voltage"
	busCurrent = "current"
)

// hidTransport reads whole reports as HID interrupt transfers.
type hidTransport struct {
	dev hid.Device
}

func (t *hidTransport) Write(p []byte) error {
	_, err := t.dev.Write(p)
	return err
}

func (t *hidTransport) ReadReport(timeout time.Duration) ([]byte, error) {
	buf := make([]byte, fnirsi.ReportLength)
	n, err := t.dev.ReadTimeout(buf, int(timeout/time.Millisecond))
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fnirsi.ErrTimeout
	}
	return buf[0:n], nil
}

// serialTransport reads the same report stream from a serial bridge,
// re-framed on the vendor marker.
type serialTransport struct {
	port *serial.Port
	r    fnirsi.Reader
}

func (t *serialTransport) Write(p []byte) error {
	_, err := t.port.Write(p)
	return err
}

func (t *serialTransport) ReadReport(_ time.Duration) ([]byte, error) {
	return t.r.ReadReport()
}

// detect probes the supported USB identities in order and opens the
// first meter found.
func detect() (hid.Device, fnirsi.Model, error) {
	for _, m := range fnirsi.Models {
		vid, pid := m.USBID()
		infos, err := hid.Enumerate(vid, pid)
		if err != nil {
			return nil, 0, err
		}
		if len(infos) == 0 {
			continue
		}
		dev, err := infos[0].Open()
		if err != nil {
			return nil, 0, fmt.Errorf("opening %s: %v", m, err)
		}
		return dev, m, nil
	}
	return nil, 0, fmt.Errorf("no supported device found")
}

func main() {
	serialDevice := flag.String("serial", "", "Read from this serial port instead of USB HID")
	baudFlag := flag.Int("speed", 115200, "Baud rate of serial port")
	modelFlag := flag.String("model", "", "Force device model (FNB48, C1, FNB58); autodetected over USB")
	noCRC := flag.Bool("no-crc", false, "Accept reports without checksum verification")
	withMQTT := flag.Bool("mqtt", false, "Publish readings as a hemtjanst device")
	topicName := flag.String("topic", "powerMeter/usb", "Topic of hemtjanst device")
	name := flag.String("name", "USB Power Meter", "Name of hemtjanst device")

	mqFlags := mqtt.MustFlags(flag.String, flag.Bool)
	flag.Parse()

	var forced fnirsi.Model
	if *modelFlag != "" {
		var err error
		forced, err = fnirsi.ParseModel(*modelFlag)
		if err != nil {
			log.Fatalf("%v: %q", err, *modelFlag)
		}
	}

	var (
		transport fnirsi.Transport
		model     fnirsi.Model
	)
	if *serialDevice != "" {
		// The serial path cannot autodetect; -model overrides the
		// FNB48 default
		model = forced
		cfg := &serial.Config{
			Name: *serialDevice,
			Baud: *baudFlag,
		}
		s, err := serial.OpenPort(cfg)
		if err != nil {
			log.Fatalf("error opening %s: %v", *serialDevice, err)
		}
		transport = &serialTransport{port: s, r: fnirsi.NewReader(s)}
	} else {
		dev, detected, err := detect()
		if err != nil {
			log.Fatalf("error opening device: %v", err)
		}
		defer dev.Close()
		model = detected
		if *modelFlag != "" {
			model = forced
		}
		transport = &hidTransport{dev: dev}
		log.Printf("Using %s", model)
	}

	var pushData func(s fnirsi.Sample)
	if *withMQTT {
		ctx := context.Background()
		mq, err := mqtt.New(ctx, mqFlags())
		if err != nil {
			log.Fatalf("connecting to mqtt: %v", err)
		}

		// Spawn a goroutine to detect MQTT errors and handle reconnect
		go func() {
			for {
				ok, err := mq.Start()
				if err != nil {
					log.Printf("MQTT Error: %s", err)
				}
				if !ok {
					os.Exit(1)
				}
				time.Sleep(3 * time.Second)
				log.Printf("MQTT: Reconnecting")
			}
		}()

		var d client.Device
		var lastPush time.Time

		// pushData gets called on each sample; publishing is throttled
		// to once a second since the meter emits 100 samples a second
		pushData = func(s fnirsi.Sample) {
			if s.Time.Before(lastPush.Add(time.Second)) {
				return
			}
			lastPush = s.Time

			if d == nil {
				// Device is created once the first sample is received
				var err error
				info := &device.Info{
					Topic:        *topicName,
					Name:         *name,
					Manufacturer: "FNIRSI",
					Model:        model.String(),
					Type:         "energyMeter",
					Features: map[string]*feature.Info{
						currentPower: {},
						energyUsed:   {},
						busVoltage:   {},
						busCurrent:   {},
					},
				}
				d, err = client.NewDevice(info, mq)
				if err != nil {
					log.Fatalf("error creating device: %v", err)
				}
			}

			// Power draw on VBUS in Watts
			_ = d.Feature(currentPower).Update(fmt.Sprintf("%.3f", s.Voltage*s.Current))
			// Convert from Ws to kWh
			_ = d.Feature(energyUsed).Update(fmt.Sprintf("%.6f", s.Energy/3600000))
			_ = d.Feature(busVoltage).Update(fmt.Sprintf("%.5f", s.Voltage))
			_ = d.Feature(busCurrent).Update(fmt.Sprintf("%.5f", s.Current))
		}
	}

	session := fnirsi.NewSession(transport, model)
	session.Decoder().SkipChecksum = *noCRC

	fmt.Println() // Extra line so concatenation works better in gnuplot.
	fmt.Println("timestamp sample_in_packet voltage_V current_A dp_V dn_V temp_C_ema energy_Ws capacity_As")

	err := session.Run(func(s fnirsi.Sample) {
		fmt.Printf("%.3f %d %7.5f %7.5f %5.3f %5.3f %6.3f %.6f %.6f\n",
			float64(s.Time.UnixNano())/1e9, s.Index,
			s.Voltage, s.Current, s.DP, s.DN, s.Temp, s.Energy, s.Capacity)
		if pushData != nil {
			pushData(s)
		}
	})
	log.Fatalf("session ended: %v", err)
}
