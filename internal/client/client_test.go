package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/knoxav/chamctl/internal/protocol"
	"github.com/knoxav/chamctl/internal/scheduler"
	"github.com/knoxav/chamctl/internal/testutil/testlog"
)

type submission struct {
	command  string
	priority scheduler.Priority
}

// fakeSubmitter records what the client hands to the scheduler and answers
// from a canned response function.
type fakeSubmitter struct {
	mu      sync.Mutex
	calls   []submission
	respond func(command string) (string, error)
}

func (f *fakeSubmitter) Submit(ctx context.Context, command string, priority scheduler.Priority) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, submission{command, priority})
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(command)
	}
	return "DONE", nil
}

func (f *fakeSubmitter) submissions() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.calls...)
}

func vtbLine(volume, muted int) string {
	return fmt.Sprintf("V:%d  M:%d  L:0  BL:00 BR:00 B: 0 T: 0", volume, muted)
}

func TestWritesUseHighPriority(t *testing.T) {
	testlog.Start(t)
	fake := &fakeSubmitter{}
	c := New(fake)

	ctx := context.Background()
	if err := c.SetVolume(ctx, 25, 32); err != nil {
		t.Fatalf("set volume: %v", err)
	}
	if err := c.SetInput(ctx, 1, 2); err != nil {
		t.Fatalf("set input: %v", err)
	}
	if err := c.SetMute(ctx, 3, true); err != nil {
		t.Fatalf("set mute: %v", err)
	}

	want := []submission{
		{"$V2532", scheduler.PriorityHigh},
		{"B0102", scheduler.PriorityHigh},
		{"$M031", scheduler.PriorityHigh},
	}
	got := fake.submissions()
	if len(got) != len(want) {
		t.Fatalf("submissions %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("submission %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReadsUseLowPriority(t *testing.T) {
	testlog.Start(t)
	fake := &fakeSubmitter{respond: func(string) (string, error) {
		return vtbLine(32, 0), nil
	}}
	c := New(fake)

	vol, err := c.GetVolume(context.Background(), 25)
	if err != nil {
		t.Fatalf("get volume: %v", err)
	}
	if vol == nil || *vol != 32 {
		t.Fatalf("want volume 32, got %v", vol)
	}
	got := fake.submissions()
	if len(got) != 1 || got[0].command != "$D25" || got[0].priority != scheduler.PriorityLow {
		t.Fatalf("unexpected submissions: %v", got)
	}
}

func TestWriteFailureNotMasked(t *testing.T) {
	testlog.Start(t)
	fake := &fakeSubmitter{respond: func(string) (string, error) {
		return "SYNTAX\r\nERROR", nil
	}}
	c := New(fake)

	err := c.SetVolume(context.Background(), 25, 32)
	if !errors.Is(err, protocol.ErrCommandFailed) {
		t.Fatalf("want ErrCommandFailed, got %v", err)
	}
}

func TestValidationShortCircuits(t *testing.T) {
	testlog.Start(t)
	fake := &fakeSubmitter{}
	c := New(fake)
	ctx := context.Background()

	cases := []error{
		c.SetVolume(ctx, 0, 32),
		c.SetVolume(ctx, 25, 64),
		c.SetInput(ctx, 65, 1),
		c.RecallPattern(ctx, 21),
	}
	for i, err := range cases {
		if !errors.Is(err, protocol.ErrInvalidArgument) {
			t.Fatalf("case %d: want ErrInvalidArgument, got %v", i, err)
		}
	}
	if n := len(fake.submissions()); n != 0 {
		t.Fatalf("invalid commands must never reach the device, got %d submissions", n)
	}
}

func TestGetVolumeOutOfRangeIsUnknown(t *testing.T) {
	testlog.Start(t)
	fake := &fakeSubmitter{respond: func(string) (string, error) {
		return vtbLine(-1, 0), nil
	}}
	c := New(fake)

	vol, err := c.GetVolume(context.Background(), 25)
	if err != nil {
		t.Fatalf("get volume: %v", err)
	}
	if vol != nil {
		t.Fatalf("out-of-range volume must read as unknown, got %d", *vol)
	}
}

func TestGetMuteUnknownStaysNil(t *testing.T) {
	testlog.Start(t)
	fake := &fakeSubmitter{respond: func(string) (string, error) {
		return "L:0  BL:00 BR:00", nil
	}}
	c := New(fake)

	muted, err := c.GetMute(context.Background(), 25)
	if err != nil {
		t.Fatalf("get mute: %v", err)
	}
	if muted != nil {
		t.Fatalf("unreported mute must stay nil, got %v", *muted)
	}
}

func TestGetInputParsesCrosspoint(t *testing.T) {
	testlog.Start(t)
	fake := &fakeSubmitter{respond: func(string) (string, error) {
		return "OUTPUT   25   VIDEO    7   AUDIO    7\r\nDONE", nil
	}}
	c := New(fake)

	input, err := c.GetInput(context.Background(), 25)
	if err != nil {
		t.Fatalf("get input: %v", err)
	}
	if input == nil || *input != 7 {
		t.Fatalf("want input 7, got %v", input)
	}
}

func TestSetMuteIdempotent(t *testing.T) {
	testlog.Start(t)
	fake := &fakeSubmitter{}
	c := New(fake)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := c.SetMute(ctx, 5, true); err != nil {
			t.Fatalf("set mute %d: %v", i, err)
		}
	}
	got := fake.submissions()
	if len(got) != 2 || got[0].command != "$M051" || got[1].command != "$M051" {
		t.Fatalf("unexpected submissions: %v", got)
	}
}

func TestFirmwareInfo(t *testing.T) {
	testlog.Start(t)
	fake := &fakeSubmitter{respond: func(string) (string, error) {
		return "Chameleon64i v2.1\r\nDONE", nil
	}}
	c := New(fake)

	info, err := c.FirmwareInfo(context.Background())
	if err != nil {
		t.Fatalf("firmware info: %v", err)
	}
	if info != "Chameleon64i v2.1" {
		t.Fatalf("unexpected signon: %q", info)
	}
}
