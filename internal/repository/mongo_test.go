package repository

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"

	"nexus/internal/model"
)

func TestProjectUpdateUnsetsClearedFields(t *testing.T) {
	p := newProject("p1")
	p.GitHub = nil
	p.StartDate = nil
	p.EndDate = nil
	p.ExecutiveBrief = &model.ExecutiveBrief{Content: json.RawMessage(`{}`), GeneratedAt: time.Now()}

	update, err := projectUpdate(p)
	if err != nil {
		t.Fatalf("projectUpdate: %v", err)
	}

	want := bson.M{"github": "", "startDate": "", "endDate": ""}
	if diff := cmp.Diff(want, update["$unset"]); diff != "" {
		t.Errorf("$unset mismatch (-want +got):\n%s", diff)
	}
	set := update["$set"].(bson.M)
	for _, key := range []string{"_id", "executiveBrief", "github"} {
		if _, ok := set[key]; ok {
			t.Errorf("$set contains %q", key)
		}
	}
	if set["name"] != "Apollo" {
		t.Errorf("$set name = %v", set["name"])
	}
}

func TestProjectUpdateKeepsPresentFields(t *testing.T) {
	p := newProject("p1")
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	p.StartDate = &start
	p.GitHub = &model.GitHubLink{RepoOwner: "acme", RepoName: "apollo", InstallationID: 42}

	update, err := projectUpdate(p)
	if err != nil {
		t.Fatalf("projectUpdate: %v", err)
	}

	if diff := cmp.Diff(bson.M{"endDate": ""}, update["$unset"]); diff != "" {
		t.Errorf("$unset mismatch (-want +got):\n%s", diff)
	}
	set := update["$set"].(bson.M)
	if _, ok := set["github"]; !ok {
		t.Error("$set is missing github")
	}
	if _, ok := set["startDate"]; !ok {
		t.Error("$set is missing startDate")
	}
}
