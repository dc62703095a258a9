package pubsub

import "testing"

func TestParseTopicPath(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		wantProject string
		wantTopic   string
		wantErr     bool
	}{
		{
			name:        "valid path",
			path:        "projects/acme-prod/topics/rollout-events",
			wantProject: "acme-prod",
			wantTopic:   "rollout-events",
		},
		{
			name:    "missing topics segment",
			path:    "projects/acme-prod/rollout-events",
			wantErr: true,
		},
		{
			name:    "wrong prefix",
			path:    "project/acme-prod/topics/rollout-events",
			wantErr: true,
		},
		{
			name:    "bare topic name",
			path:    "rollout-events",
			wantErr: true,
		},
		{
			name:    "empty",
			path:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project, topic, err := ParseTopicPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTopicPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if project != tt.wantProject {
				t.Errorf("projectID = %s, want %s", project, tt.wantProject)
			}
			if topic != tt.wantTopic {
				t.Errorf("topicID = %s, want %s", topic, tt.wantTopic)
			}
		})
	}
}
