package strategy

import (
	"errors"
	"testing"

	"github.com/guimove/hostbalance/internal/model"
)

func recordingDescriptor() Descriptor {
	return Descriptor{
		Name:        "recording",
		DisplayName: "Recording",
		Schema:      Schema{{Name: "threshold", Type: TypeNumber, Default: 25.0}},
		Factory: func(deps Deps, params Parameters) (Strategy, error) {
			return &recordingStrategy{Base: NewBase("recording", deps, params)}, nil
		},
	}
}

func TestRegistry_New(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(recordingDescriptor())

	s, err := r.New("recording", Deps{Model: model.NewClusterModel()}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rs := s.(*recordingStrategy)
	if rs.Params.Float("threshold") != 25.0 {
		t.Errorf("threshold default not applied: %v", rs.Params.Map())
	}
	if s.Phase() != PhaseCreated {
		t.Errorf("phase: got %s, want created", s.Phase())
	}
}

func TestRegistry_ValidationBeforeFactory(t *testing.T) {
	r := NewRegistry()
	called := false
	d := recordingDescriptor()
	d.Factory = func(deps Deps, params Parameters) (Strategy, error) {
		called = true
		return nil, nil
	}
	r.MustRegister(d)

	_, err := r.New("recording", Deps{}, map[string]any{"threshold": "abc"})
	if !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters, got %v", err)
	}
	if called {
		t.Error("factory must not run when parameters are invalid")
	}
}

func TestRegistry_UnknownAndDuplicate(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(recordingDescriptor())

	if _, err := r.New("nope", Deps{}, nil); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
	if err := r.Register(recordingDescriptor()); err == nil {
		t.Error("expected error registering duplicate name")
	}
	if err := r.Register(Descriptor{Name: "x"}); err == nil {
		t.Error("expected error for descriptor without factory")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "recording" {
		t.Errorf("Names: got %v", names)
	}
}
