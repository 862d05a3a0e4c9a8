package mail

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordingMailer struct {
	mu       sync.Mutex
	verifies []string
	fail     bool
}

func (m *recordingMailer) SendAccountVerify(_ context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp down")
	}
	m.verifies = append(m.verifies, email+" "+link)
	return nil
}

func (m *recordingMailer) SendPasswordReset(context.Context, string, string) error { return nil }
func (m *recordingMailer) SendPasswordRecover(context.Context, string, string, string) error {
	return nil
}
func (m *recordingMailer) SendReuseAlert(context.Context, string, bool) error { return nil }

func verifyJob(email string) Job {
	return Job{Kind: "account_verify", To: email, Send: func(ctx context.Context, m Mailer) error {
		return m.SendAccountVerify(ctx, email, "https://x/verify?token=t")
	}}
}

func TestDispatcherDeliversQueuedJobsOnClose(t *testing.T) {
	m := &recordingMailer{}
	var results []error
	var mu sync.Mutex
	d := NewDispatcher(m, Config{BufferSize: 8, Workers: 2}, nil, func(kind string, err error) {
		mu.Lock()
		results = append(results, err)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		if !d.Enqueue(verifyJob("a@x.com")) {
			t.Fatalf("job %d rejected", i)
		}
	}
	d.Close()

	if d.Sent() != 5 || len(m.verifies) != 5 || len(results) != 5 {
		t.Fatalf("sent=%d recorded=%d results=%d", d.Sent(), len(m.verifies), len(results))
	}
	if d.Enqueue(verifyJob("late@x.com")) {
		t.Fatal("closed dispatcher must reject jobs")
	}
}

func TestDispatcherCountsFailures(t *testing.T) {
	m := &recordingMailer{fail: true}
	d := NewDispatcher(m, Config{BufferSize: 4, Workers: 1}, nil, nil)
	d.Enqueue(verifyJob("a@x.com"))
	d.Close()

	if d.Failed() != 1 || d.Sent() != 0 {
		t.Fatalf("failed=%d sent=%d", d.Failed(), d.Sent())
	}
}

func TestDispatcherRecoversFromPanics(t *testing.T) {
	d := NewDispatcher(&recordingMailer{}, Config{BufferSize: 4, Workers: 1}, nil, nil)
	d.Enqueue(Job{Kind: "boom", Send: func(context.Context, Mailer) error { panic("boom") }})
	d.Enqueue(verifyJob("a@x.com"))
	d.Close()

	if d.Failed() != 1 || d.Sent() != 1 {
		t.Fatalf("failed=%d sent=%d", d.Failed(), d.Sent())
	}
}
