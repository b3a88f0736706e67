package storage

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arthur-debert/nanocache/types"
)

func TestLockManager(t *testing.T) {
	lm := NewLockManager()

	t.Run("ConcurrentReads", func(t *testing.T) {
		// Both readers must be inside the lock at the same time to pass the barrier
		const readers = 2
		var inside sync.WaitGroup
		inside.Add(readers)
		release := make(chan struct{})
		done := make(chan struct{}, readers)

		for i := 0; i < readers; i++ {
			go func() {
				lm.Read(func() {
					inside.Done()
					<-release
				})
				done <- struct{}{}
			}()
		}

		all := make(chan struct{})
		go func() {
			inside.Wait()
			close(all)
		}()

		select {
		case <-all:
		case <-time.After(time.Second):
			t.Fatal("readers did not hold the read lock concurrently")
		}
		close(release)
		for i := 0; i < readers; i++ {
			<-done
		}
	})

	t.Run("WriteBlocksReads", func(t *testing.T) {
		writeStarted := make(chan struct{})
		releaseWrite := make(chan struct{})
		readDone := make(chan struct{})

		go func() {
			lm.Write(func() {
				close(writeStarted)
				<-releaseWrite
			})
		}()
		<-writeStarted

		go func() {
			lm.Read(func() {})
			close(readDone)
		}()

		select {
		case <-readDone:
			t.Fatal("read ran while write was in progress")
		case <-time.After(25 * time.Millisecond):
		}

		close(releaseWrite)

		select {
		case <-readDone:
		case <-time.After(time.Second):
			t.Fatal("read did not run after write completed")
		}
	})

	t.Run("ExecutePropagatesErrors", func(t *testing.T) {
		boom := errors.New("boom")
		if err := lm.Execute(WriteOperation, func() error { return boom }); !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
	})

	t.Run("ExecuteWithResult", func(t *testing.T) {
		result, err := ExecuteWithResult(lm, ReadOperation, func() (string, error) {
			return "test-value", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "test-value" {
			t.Errorf("expected 'test-value', got %v", result)
		}
	})
}

func TestStoreDataClone(t *testing.T) {
	data := NewStoreData(time.Unix(0, 0))
	data.Collections["addresses"] = []types.Entity{
		{ID: "a", IsDefault: types.Bool(true), Payload: types.Payload{"name": "Home"}},
	}

	clone := data.Clone()
	clone.Collections["addresses"][0].Payload["name"] = "Work"
	*clone.Collections["addresses"][0].IsDefault = false
	clone.Collections["categories"] = nil

	orig := data.Collections["addresses"][0]
	if orig.Payload["name"] != "Home" || !orig.Default() {
		t.Errorf("clone shares state with original: %+v", orig)
	}
	if _, ok := data.Collections["categories"]; ok {
		t.Error("clone shares the collections map")
	}
	if data.Metadata.Version != CurrentVersion {
		t.Errorf("expected version %s, got %s", CurrentVersion, data.Metadata.Version)
	}
}
