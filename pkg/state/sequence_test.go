package state

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errRefused = errors.New("refused")

type event struct {
	kind  string
	value uint16
}

// Records writes, exchanges and settle delays in a single timeline
type recorder struct {
	events []event
	failAt int
	writes int
}

func (r *recorder) WriteControlWord(controlWord uint16) error {
	r.writes++
	r.events = append(r.events, event{"write", controlWord})
	if r.writes == r.failAt {
		return errRefused
	}
	return nil
}

func newTestSequencer(r *recorder) *Sequencer {
	s := NewSequencer(r)
	s.SetSleep(func(d time.Duration) {
		r.events = append(r.events, event{"settle", uint16(d / time.Millisecond)})
	})
	return s
}

func TestServoOn(t *testing.T) {
	r := &recorder{}
	s := newTestSequencer(r)
	assert.Nil(t, s.ServoOn())
	assert.Equal(t, []event{
		{"write", 0x0006}, {"settle", 10},
		{"write", 0x0007}, {"settle", 10},
		{"write", 0x000F}, {"settle", 10},
	}, r.events)
	assert.Equal(t, 3, r.writes)
}

func TestServoOnAbortsOnSecondWrite(t *testing.T) {
	r := &recorder{failAt: 2}
	s := newTestSequencer(r)
	err := s.ServoOn()
	assert.True(t, errors.Is(err, errRefused))
	assert.Equal(t, 2, r.writes)
	assert.Equal(t, []event{{"write", 0x0006}, {"settle", 10}, {"write", 0x0007}}, r.events)
}

func TestSequences(t *testing.T) {
	cases := []struct {
		name     string
		run      func(s *Sequencer) error
		expected []uint16
	}{
		{"servo off", (*Sequencer).ServoOff, []uint16{0x06, 0x00}},
		{"servo off disable first", (*Sequencer).ServoOffDisableFirst, []uint16{0x07, 0x06, 0x00}},
		{"start homing", (*Sequencer).StartHoming, []uint16{0x06, 0x0F, 0x1F}},
		{"quick stop", (*Sequencer).QuickStop, []uint16{0x02}},
		{"fault reset", (*Sequencer).FaultReset, []uint16{0x80}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			written := []uint16{}
			s := NewSequencer(ControlWordWriterFunc(func(controlWord uint16) error {
				written = append(written, controlWord)
				return nil
			}))
			s.SetSettleDelay(0)
			assert.Nil(t, c.run(s))
			assert.Equal(t, c.expected, written)
		})
	}
}

func TestStartHomingAbortsOnFirstFailure(t *testing.T) {
	r := &recorder{failAt: 1}
	s := newTestSequencer(r)
	assert.NotNil(t, s.StartHoming())
	assert.Equal(t, 1, r.writes)
}

func TestExchangeHook(t *testing.T) {
	r := &recorder{}
	s := newTestSequencer(r)
	exchanges := 0
	s.SetExchange(func() error {
		exchanges++
		r.events = append(r.events, event{"exchange", 0})
		return nil
	})
	assert.Nil(t, s.ServoOff())
	assert.Equal(t, 2, exchanges)
	assert.Equal(t, []event{
		{"write", 0x0006}, {"exchange", 0}, {"settle", 10},
		{"write", 0x0000}, {"exchange", 0}, {"settle", 10},
	}, r.events)

	s.SetExchange(func() error { return errRefused })
	r.events = nil
	err := s.ServoOn()
	assert.True(t, errors.Is(err, errRefused))
	assert.Equal(t, []event{{"write", 0x0006}}, r.events)
}
