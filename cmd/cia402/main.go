// Command cia402 brings a CiA402 drive to operation enabled in cyclic
// synchronous torque mode and logs its state.
package main

import (
	"flag"
	"time"

	cia402 "github.com/samsamfire/gocia402"
	can "github.com/samsamfire/gocia402/pkg/can"
	_ "github.com/samsamfire/gocia402/pkg/can/rawcan"
	_ "github.com/samsamfire/gocia402/pkg/can/slcan"
	_ "github.com/samsamfire/gocia402/pkg/can/socketcan"
	"github.com/samsamfire/gocia402/pkg/config"
	"github.com/samsamfire/gocia402/pkg/drive"
	"github.com/samsamfire/gocia402/pkg/master/canbus"
	"github.com/samsamfire/gocia402/pkg/master/virtual"
	"github.com/samsamfire/gocia402/pkg/od"
	log "github.com/sirupsen/logrus"
)

var DEFAULT_SLAVE_ID = 1
var DEFAULT_CAN_INTERFACE = "socketcan"
var DEFAULT_CAN_CHANNEL = "can0"

type master interface {
	cia402.Master
	cia402.Cycler
	SetPhase(slaveId uint16, phase cia402.Phase) error
}

func newMaster(canInterface string, channel string, slaveId uint16) master {
	if canInterface == "virtual" {
		m := virtual.NewMaster()
		m.AddSlave(slaveId)
		return m
	}
	bus, err := can.NewBus(canInterface, channel)
	if err != nil {
		log.Fatalf("creating bus : %v (available : %v)", err, can.Interfaces())
	}
	err = bus.Connect()
	if err != nil {
		log.Fatal(err)
	}
	m, err := canbus.NewMaster(bus)
	if err != nil {
		log.Fatal(err)
	}
	err = m.AddSlave(slaveId)
	if err != nil {
		log.Fatal(err)
	}
	return m
}

// Cycle until the slave reports the phase
func waitPhase(m master, slaveId uint16, phase cia402.Phase, timeout time.Duration, period time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		current, err := m.Phase(slaveId)
		if err == nil && current == phase {
			return nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return err
			}
			return cia402.ErrWrongPhase
		}
		if err := m.Cycle(); err != nil {
			return err
		}
		time.Sleep(period)
	}
}

func main() {
	log.SetLevel(log.DebugLevel)
	// Command line arguments
	canInterface := flag.String("i", DEFAULT_CAN_INTERFACE, "can interface e.g. socketcan, rawcan, slcan, virtual")
	channel := flag.String("c", DEFAULT_CAN_CHANNEL, "can channel e.g. can0, vcan0, /dev/ttyACM0")
	slaveId := flag.Int("n", DEFAULT_SLAVE_ID, "slave id, ignored when a profile is given")
	profile := flag.String("p", "", "drive profile (.ini or .yaml)")
	torque := flag.Float64("t", 0, "target torque [Nm]")
	cycles := flag.Int("cycles", 1000, "number of cycles to run")
	period := flag.Duration("period", 10*time.Millisecond, "cycle period")
	flag.Parse()

	params := drive.DefaultParameters(uint16(*slaveId))
	if *profile != "" {
		var err error
		params, err = config.Load(*profile)
		if err != nil {
			log.Fatal(err)
		}
	}
	m := newMaster(*canInterface, *channel, params.SlaveId)
	err := waitPhase(m, params.SlaveId, cia402.PhasePreOperational, 2*time.Second, *period)
	if err != nil {
		log.Fatalf("slave %d : %v", params.SlaveId, err)
	}

	driver := drive.New(m, params)
	if err := driver.Init(); err != nil {
		log.Fatal(err)
	}
	if err := m.SetPhase(params.SlaveId, cia402.PhaseOperational); err != nil {
		log.Fatal(err)
	}
	if err := waitPhase(m, params.SlaveId, cia402.PhaseOperational, 2*time.Second, *period); err != nil {
		log.Fatal(err)
	}
	if err := driver.SetModesOfOperation(od.ModeCyclicSynchronousTorque); err != nil {
		log.Fatal(err)
	}
	if err := driver.ServoOn(); err != nil {
		log.Fatal(err)
	}
	if err := driver.SetTargetTorqueNm(*torque); err != nil {
		log.Fatal(err)
	}

	ticker := time.NewTicker(*period)
	defer ticker.Stop()
	for i := 0; i < *cycles; i++ {
		<-ticker.C
		if err := m.Cycle(); err != nil {
			log.Errorf("cycle : %v", err)
			continue
		}
		if err := driver.Update(); err != nil {
			log.Warnf("update : %v", err)
			continue
		}
		if i%100 == 0 {
			state := driver.State()
			log.Infof("%v | position %.2f deg | velocity %.2f | torque %.3f Nm", state.State, state.PositionDeg, state.Velocity, state.TorqueNm)
		}
	}
	if err := driver.ServoOff(); err != nil {
		log.Error(err)
	}
	if err := m.SetPhase(params.SlaveId, cia402.PhasePreOperational); err != nil {
		log.Error(err)
	}
}
