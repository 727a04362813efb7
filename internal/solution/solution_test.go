package solution

import (
	"encoding/json"
	"testing"

	"github.com/guimove/hostbalance/internal/model"
)

func TestAddAction_PreservesOrderAndDuplicates(t *testing.T) {
	s := New("test")
	s.AddAction(ActionNop, "", map[string]any{"message": "a"})
	s.AddAction(ActionMigrate, "vm-1", nil)
	s.AddAction(ActionMigrate, "vm-1", nil)

	actions := s.Actions()
	if len(actions) != 3 {
		t.Fatalf("got %d actions, want 3", len(actions))
	}
	want := []ActionType{ActionNop, ActionMigrate, ActionMigrate}
	for i, a := range actions {
		if a.Type != want[i] {
			t.Errorf("action %d: got %s, want %s", i, a.Type, want[i])
		}
	}
	if actions[1].ID == actions[2].ID {
		t.Error("duplicate actions should still get distinct ids")
	}
}

func TestAddAction_CopiesInput(t *testing.T) {
	s := New("test")
	in := map[string]any{"message": "before"}
	s.AddAction(ActionNop, "", in)
	in["message"] = "after"

	if got := s.Actions()[0].Input["message"]; got != "before" {
		t.Errorf("input leaked caller mutation: got %v", got)
	}
}

func TestActions_ReturnsCopy(t *testing.T) {
	s := New("test")
	s.AddAction(ActionNop, "", nil)
	actions := s.Actions()
	actions[0].Type = ActionResize

	if s.Actions()[0].Type != ActionNop {
		t.Error("Actions() should return a copy")
	}
}

func TestCountByType(t *testing.T) {
	s := New("test")
	s.AddAction(ActionNop, "", nil)
	s.AddAction(ActionNop, "", nil)
	s.AddAction(ActionSleep, "", nil)

	counts := s.CountByType()
	if counts[ActionNop] != 2 || counts[ActionSleep] != 1 || counts[ActionMigrate] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestSeal_PanicsOnAdd(t *testing.T) {
	s := New("test")
	s.Seal()
	defer func() {
		if recover() == nil {
			t.Error("expected panic when adding to sealed solution")
		}
	}()
	s.AddAction(ActionNop, "", nil)
}

func TestMarshalJSON_IncludesModel(t *testing.T) {
	m := model.NewClusterModel()
	if err := m.AddNode(&model.ComputeNode{
		UUID: "n1", VCPUs: 4, State: model.ServiceEnabled, Status: model.StatusOnline,
	}); err != nil {
		t.Fatal(err)
	}

	s := New("workload_balance")
	s.AddAction(ActionMigrate, "vm-1", map[string]any{ParamMigrationType: MigrationLive})
	s.Model = m

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Strategy string `json:"strategy"`
		Actions  []struct {
			Type       string `json:"action_type"`
			ResourceID string `json:"resource_id"`
		} `json:"actions"`
		Model struct {
			Nodes []struct {
				UUID string `json:"uuid"`
			} `json:"nodes"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Strategy != "workload_balance" {
		t.Errorf("strategy: got %q", decoded.Strategy)
	}
	if len(decoded.Actions) != 1 || decoded.Actions[0].ResourceID != "vm-1" {
		t.Errorf("unexpected actions: %+v", decoded.Actions)
	}
	if len(decoded.Model.Nodes) != 1 || decoded.Model.Nodes[0].UUID != "n1" {
		t.Errorf("unexpected model: %+v", decoded.Model)
	}
}
