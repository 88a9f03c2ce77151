package client

import (
	"context"
	"strings"
	"testing"

	"github.com/knoxav/chamctl/internal/testutil/testlog"
)

// respondDevice answers like a healthy switcher for both query families.
func respondDevice(volumes map[int]int) func(string) (string, error) {
	return func(command string) (string, error) {
		switch {
		case strings.HasPrefix(command, "$D"):
			zone := atoiOrZero(command[2:])
			if v, ok := volumes[zone]; ok {
				return vtbLine(v, 0), nil
			}
			return vtbLine(-1, 0), nil
		case strings.HasPrefix(command, "D"):
			var b strings.Builder
			first := atoiOrZero(command[1:3])
			last := first
			if len(command) >= 5 {
				last = atoiOrZero(command[3:5])
			}
			for z := first; z <= last; z++ {
				b.WriteString(crosspointRow(z, z%8+1))
			}
			b.WriteString("DONE")
			return b.String(), nil
		default:
			return "DONE", nil
		}
	}
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func crosspointRow(zone, input int) string {
	return "OUTPUT   " + pad2(zone) + "   VIDEO   " + pad2(input) + "   AUDIO   " + pad2(input) + "\r\n"
}

func pad2(n int) string {
	if n < 10 {
		return " " + string(rune('0'+n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

func TestZoneStateMergesQueries(t *testing.T) {
	testlog.Start(t)
	fake := &fakeSubmitter{respond: respondDevice(map[int]int{25: 32})}
	c := New(fake)

	state, err := c.ZoneState(context.Background(), 25)
	if err != nil {
		t.Fatalf("zone state: %v", err)
	}
	if state.Zone != 25 {
		t.Fatalf("want zone 25, got %d", state.Zone)
	}
	if state.Volume == nil || *state.Volume != 32 {
		t.Fatalf("want volume 32, got %v", state.Volume)
	}
	if state.Muted == nil || *state.Muted {
		t.Fatalf("want unmuted, got %v", state.Muted)
	}
	if state.Input == nil || *state.Input != 25%8+1 {
		t.Fatalf("want input %d, got %v", 25%8+1, state.Input)
	}
}

func TestZoneStateSubstitutesFallbackVolume(t *testing.T) {
	testlog.Start(t)
	fake := &fakeSubmitter{respond: respondDevice(nil)} // every zone reports V:-1
	c := New(fake)

	state, err := c.ZoneState(context.Background(), 25)
	if err != nil {
		t.Fatalf("zone state: %v", err)
	}
	if state.Volume == nil || *state.Volume != 25 {
		t.Fatalf("want fallback volume 25, got %v", state.Volume)
	}

	state, err = c.ZoneState(context.Background(), 50)
	if err != nil {
		t.Fatalf("zone state: %v", err)
	}
	if state.Volume == nil || *state.Volume != 40 {
		t.Fatalf("fallback must cap at 40, got %v", state.Volume)
	}
}

func TestZoneStateFallbackDisabled(t *testing.T) {
	testlog.Start(t)
	fake := &fakeSubmitter{respond: respondDevice(nil)}
	c := New(fake, WithVolumeFallback(nil))

	state, err := c.ZoneState(context.Background(), 25)
	if err != nil {
		t.Fatalf("zone state: %v", err)
	}
	if state.Volume != nil {
		t.Fatalf("disabled fallback must leave volume unknown, got %d", *state.Volume)
	}
}

func TestAllZoneStatesSingleRangeQuery(t *testing.T) {
	testlog.Start(t)
	fake := &fakeSubmitter{respond: respondDevice(map[int]int{1: 10, 3: 20, 5: 30})}
	c := New(fake)

	states, err := c.AllZoneStates(context.Background(), []int{5, 1, 3})
	if err != nil {
		t.Fatalf("all zone states: %v", err)
	}
	if len(states) != 3 {
		t.Fatalf("want 3 states, got %d", len(states))
	}
	for zone, wantVol := range map[int]int{1: 10, 3: 20, 5: 30} {
		st, ok := states[zone]
		if !ok {
			t.Fatalf("missing zone %d", zone)
		}
		if st.Volume == nil || *st.Volume != wantVol {
			t.Fatalf("zone %d: want volume %d, got %v", zone, wantVol, st.Volume)
		}
		if st.Input == nil || *st.Input != zone%8+1 {
			t.Fatalf("zone %d: want input %d, got %v", zone, zone%8+1, st.Input)
		}
	}

	var rangeQueries, vtbQueries int
	for _, s := range fake.submissions() {
		switch {
		case strings.HasPrefix(s.command, "$D"):
			vtbQueries++
		case strings.HasPrefix(s.command, "D"):
			rangeQueries++
			if s.command != "D0105" {
				t.Fatalf("want one D0105 spanning the zones, got %q", s.command)
			}
		}
	}
	if rangeQueries != 1 || vtbQueries != 3 {
		t.Fatalf("want 1 range + 3 VTB queries, got %d/%d", rangeQueries, vtbQueries)
	}
}

func TestAllCrosspointsFullMap(t *testing.T) {
	testlog.Start(t)
	fake := &fakeSubmitter{respond: func(command string) (string, error) {
		if command != "M" {
			return "ERROR", nil
		}
		return crosspointRow(1, 3) + crosspointRow(2, 5) + "DONE", nil
	}}
	c := New(fake)

	cps, err := c.AllCrosspoints(context.Background())
	if err != nil {
		t.Fatalf("all crosspoints: %v", err)
	}
	if len(cps) != 2 || cps[1].Video != 3 || cps[2].Video != 5 {
		t.Fatalf("crosspoints = %v", cps)
	}
}

func TestAllZoneStatesEmpty(t *testing.T) {
	testlog.Start(t)
	c := New(&fakeSubmitter{})
	states, err := c.AllZoneStates(context.Background(), nil)
	if err != nil {
		t.Fatalf("all zone states: %v", err)
	}
	if len(states) != 0 {
		t.Fatalf("want empty map, got %v", states)
	}
}
