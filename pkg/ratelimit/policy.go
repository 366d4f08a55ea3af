package ratelimit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Action names a rate-limited operation. Checks are always made against a
// named action, and every action owns a disjoint slice of the counter store,
// so bursts on one action never eat into another's quota.
type Action string

// Actions covered by the default policy table.
const (
	ActionSignInAttempt   Action = "sign-in-attempt"
	ActionChatMessage     Action = "chat-message"
	ActionReaction        Action = "reaction"
	ActionForumPost       Action = "forum-post"
	ActionComment         Action = "comment"
	ActionVote            Action = "vote"
	ActionEventCreate     Action = "event-create"
	ActionCommunityCreate Action = "community-create"
	ActionMembershipJoin  Action = "membership-join"
	ActionMembershipLeave Action = "membership-leave"
	ActionProfileUpdate   Action = "profile-update"
	ActionChannelCreate   Action = "channel-create"
	ActionDocumentCreate  Action = "document-create"
	ActionFolderCreate    Action = "folder-create"
	ActionRSVP            Action = "rsvp"
	ActionInviteSend      Action = "invite-send"
	ActionFileUpload      Action = "file-upload"
)

// Policy describes the sliding window applied to one action.
type Policy struct {
	// MaxCount is the number of calls admitted within any window of
	// Window length. The MaxCount+1th call is denied.
	MaxCount int
	// Window is the length of the sliding window.
	Window time.Duration
	// KeyPrefix namespaces the action's counters in the store. Prefixes
	// are derived from the action name and never overridden, which keeps
	// per-action quotas disjoint.
	KeyPrefix string
}

func newPolicy(action Action, maxCount int, window time.Duration) Policy {
	return Policy{
		MaxCount:  maxCount,
		Window:    window,
		KeyPrefix: "rl:" + string(action),
	}
}

// DefaultPolicies returns the built-in policy table. The values are tuned
// for a human on the other end of the connection; automation that needs
// more headroom should get a dedicated action, not a looser default.
func DefaultPolicies() map[Action]Policy {
	return map[Action]Policy{
		ActionSignInAttempt:   newPolicy(ActionSignInAttempt, 5, time.Minute),
		ActionChatMessage:     newPolicy(ActionChatMessage, 10, 10*time.Second),
		ActionReaction:        newPolicy(ActionReaction, 20, 10*time.Second),
		ActionForumPost:       newPolicy(ActionForumPost, 5, time.Minute),
		ActionComment:         newPolicy(ActionComment, 10, time.Minute),
		ActionVote:            newPolicy(ActionVote, 30, time.Minute),
		ActionEventCreate:     newPolicy(ActionEventCreate, 10, time.Hour),
		ActionCommunityCreate: newPolicy(ActionCommunityCreate, 3, 24*time.Hour),
		ActionMembershipJoin:  newPolicy(ActionMembershipJoin, 20, time.Hour),
		ActionMembershipLeave: newPolicy(ActionMembershipLeave, 20, time.Hour),
		ActionProfileUpdate:   newPolicy(ActionProfileUpdate, 10, 10*time.Minute),
		ActionChannelCreate:   newPolicy(ActionChannelCreate, 10, time.Hour),
		ActionDocumentCreate:  newPolicy(ActionDocumentCreate, 30, time.Hour),
		ActionFolderCreate:    newPolicy(ActionFolderCreate, 30, time.Hour),
		ActionRSVP:            newPolicy(ActionRSVP, 30, 10*time.Minute),
		ActionInviteSend:      newPolicy(ActionInviteSend, 20, time.Hour),
		ActionFileUpload:      newPolicy(ActionFileUpload, 20, 10*time.Minute),
	}
}

// policyFile is the on-disk override format:
//
//	actions:
//	  chat-message:
//	    max_count: 20
//	    window: 5s
type policyFile struct {
	Actions map[string]policyOverride `yaml:"actions"`
}

type policyOverride struct {
	MaxCount int    `yaml:"max_count"`
	Window   string `yaml:"window"`
}

// LoadPolicyFile reads a YAML override file and applies it on top of the
// default policy table. Overrides may retune MaxCount and Window per action
// but cannot introduce new actions or change key prefixes. The file is read
// once at startup; edits require a restart.
func LoadPolicyFile(path string) (map[Action]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	policies := DefaultPolicies()
	for name, override := range file.Actions {
		policy, ok := policies[Action(name)]
		if !ok {
			return nil, fmt.Errorf("unknown action %q in policy file %s", name, path)
		}
		if override.MaxCount < 0 {
			return nil, fmt.Errorf("action %q: max_count must be positive", name)
		}
		if override.MaxCount > 0 {
			policy.MaxCount = override.MaxCount
		}
		if override.Window != "" {
			window, err := time.ParseDuration(override.Window)
			if err != nil {
				return nil, fmt.Errorf("action %q: invalid window: %w", name, err)
			}
			if window <= 0 {
				return nil, fmt.Errorf("action %q: window must be positive", name)
			}
			policy.Window = window
		}
		policies[Action(name)] = policy
	}

	return policies, nil
}
