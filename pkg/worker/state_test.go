package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/taskgrid/taskgrid/pkg/types"
	"github.com/taskgrid/taskgrid/pkg/wire"
)

func TestReentrantBorrowPanics(t *testing.T) {
	s := New(t.TempDir(), types.Resources{NCpus: 1})

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic on reentrant borrow")
		}
		if _, ok := r.(ErrReentrantBorrow); !ok {
			t.Fatalf("expected ErrReentrantBorrow, got %T: %v", r, r)
		}
	}()

	release := s.borrow()
	defer release()
	// Simulate a handler calling back into another public operation
	// while still holding the first borrow.
	s.AddTask(wire.AddTaskRequest{Id: 1})
}

func TestCreateWorkDirTree(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, types.Resources{NCpus: 1})

	if err := s.createWorkDirTree(); err != nil {
		t.Fatalf("create work dir tree: %v", err)
	}

	for _, want := range []string{"data", "tasks", "subworkers", filepath.Join("subworkers", "logs")} {
		if info, err := os.Stat(filepath.Join(dir, want)); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist", want)
		}
	}
}

func TestReadyFileRequiresRegistration(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, types.Resources{NCpus: 1})

	err := s.createReadyFile(filepath.Join(dir, "ready"))
	if err == nil {
		t.Fatal("expected ready-file creation to fail before registration")
	}
}

func TestStartSubworkerListenerRejectsStaleSocket(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, types.Resources{NCpus: 1})
	if err := s.createWorkDirTree(); err != nil {
		t.Fatalf("create work dir tree: %v", err)
	}

	stale := filepath.Join(dir, "subworkers", subworkerSocketName)
	if err := os.WriteFile(stale, nil, 0o644); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}

	if err := s.startSubworkerListener(); err == nil {
		t.Fatal("expected stale subworker socket to fail bind")
	}
}

func TestAddTaskAndDataObjectThroughState(t *testing.T) {
	s := New(t.TempDir(), types.Resources{NCpus: 1})

	if _, err := s.AddDataObject(wire.AddDataObjectRequest{Id: 1, State: types.DataObjectFinished}); err != nil {
		t.Fatalf("add data object: %v", err)
	}
	task, err := s.AddTask(wire.AddTaskRequest{Id: 1, Inputs: []wire.Input{{DataObject: 1}}})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if task.Status != types.TaskReady {
		t.Fatalf("expected immediate Ready, got %s", task.Status)
	}
}
