package session

import (
	"context"
	"testing"
	"time"
)

func TestCancellationSourceIsIdempotent(t *testing.T) {
	src := NewCancellationSource()
	if src.IsCancelled() {
		t.Fatal("new source should be live")
	}
	if !src.Cancel() {
		t.Fatal("first Cancel should report true")
	}
	if src.Cancel() {
		t.Fatal("second Cancel should report false")
	}
	if got := src.cancellations(); got != 1 {
		t.Fatalf("cancellations = %d, want 1", got)
	}
	select {
	case <-src.Context().Done():
	default:
		t.Fatal("context should be done after Cancel")
	}
}

func TestBindFollowsSource(t *testing.T) {
	src := NewCancellationSource()
	ctx, stop := bind(context.Background(), src)
	defer stop()

	src.Cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("bound context not cancelled by source")
	}
}

func TestBindFollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	src := NewCancellationSource()
	ctx, stop := bind(parent, src)
	defer stop()

	cancel()
	<-ctx.Done()
	if src.IsCancelled() {
		t.Fatal("parent cancellation must not cancel the source")
	}
}

func TestBindStopReleasesContext(t *testing.T) {
	src := NewCancellationSource()
	ctx, stop := bind(context.Background(), src)
	stop()

	<-ctx.Done()
	if src.IsCancelled() {
		t.Fatal("stop must not cancel the source")
	}
}
