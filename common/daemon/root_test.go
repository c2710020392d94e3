// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package daemon

import (
	"errors"
	"testing"
	"time"

	"gopkg.in/tomb.v2"

	"ribd/common/helpers"
	"ribd/common/reporter"
)

func TestTerminate(t *testing.T) {
	r := reporter.NewMock(t)
	c, err := New(r)
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	helpers.StartStop(t, c)

	select {
	case <-c.Terminated():
		t.Fatalf("Terminated() was closed while we didn't request termination")
	default:
	}

	c.Terminate()
	select {
	case _, ok := <-c.Terminated():
		if ok {
			t.Fatalf("Terminated() returned an unexpected value")
		}
	default:
		t.Fatalf("Terminated() wasn't closed while we requested it to be")
	}

	c.Terminate() // Can be called several times.
}

func TestTombTracking(t *testing.T) {
	for _, tc := range []struct {
		description string
		err         error
	}{
		{"clean exit", nil},
		{"error", errors.New("something bad happened")},
	} {
		t.Run(tc.description, func(t *testing.T) {
			var tomb tomb.Tomb
			r := reporter.NewMock(t)
			c, err := New(r)
			if err != nil {
				t.Fatalf("New() error:\n%+v", err)
			}
			c.Track(&tomb, "tomb")
			helpers.StartStop(t, c)

			tomb.Go(func() error {
				<-tomb.Dying()
				return tc.err
			})
			tomb.Kill(tc.err)

			select {
			case <-c.Terminated():
			case <-time.After(time.Second):
				t.Fatal("Terminated() wasn't closed after tomb death")
			}
			if err := tomb.Wait(); !errors.Is(err, tc.err) {
				t.Fatalf("Wait() error:\n%+v", err)
			}
		})
	}
}
