// Package store holds the persisted entities of spec §3 and their pgx-backed
// repositories. Scanning is explicit; there is no ORM.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TenantStatus enumerates the lifecycle states of a Tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
)

// MembershipRole enumerates the roles a User can hold within a Tenant.
// Any other stored string is treated as RoleMember by authorization checks.
type MembershipRole string

const (
	RoleOwner  MembershipRole = "owner"
	RoleMember MembershipRole = "member"
)

// NormalizeRole maps an unrecognized stored role to RoleMember, per
// spec.md §9's instruction not to invent a third role.
func NormalizeRole(r MembershipRole) MembershipRole {
	if r == RoleOwner {
		return RoleOwner
	}
	return RoleMember
}

// ApiKeyStatus enumerates the lifecycle states of an ApiKey.
type ApiKeyStatus string

const (
	ApiKeyActive  ApiKeyStatus = "active"
	ApiKeyRevoked ApiKeyStatus = "revoked"
)

// MessageRole enumerates the roles a ConversationMessage may carry.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// SystemPromptPolicy controls how an agent's system prompt folds into a
// caller-supplied chat-completions body.
type SystemPromptPolicy string

const (
	SystemPromptPrepend   SystemPromptPolicy = "prepend"
	SystemPromptAppend    SystemPromptPolicy = "append"
	SystemPromptOverwrite SystemPromptPolicy = "overwrite"
	SystemPromptIgnore    SystemPromptPolicy = "ignore"
)

// ListMergePolicy controls how an agent's skills or MCP endpoints fold into
// a caller-supplied list.
type ListMergePolicy string

const (
	ListMergeMerge     ListMergePolicy = "merge"
	ListMergeOverwrite ListMergePolicy = "overwrite"
	ListMergeIgnore    ListMergePolicy = "ignore"
)

// ProviderKind distinguishes the two upstream dialects a ProviderConfig can
// describe.
type ProviderKind string

const (
	ProviderOpenAI ProviderKind = "openai"
	ProviderAzure  ProviderKind = "azure"
)

// ProviderConfig is the nullable, inheritable provider-credential shape
// carried by both Tenant and Agent. Fields are pointers so "absent" can be
// distinguished from the zero value during config-resolver merges.
type ProviderConfig struct {
	Provider   ProviderKind `json:"provider"`
	BaseURL    *string      `json:"baseUrl,omitempty"`
	ApiKey     *string      `json:"apiKey,omitempty"`
	Deployment *string      `json:"deployment,omitempty"`
	ApiVersion *string      `json:"apiVersion,omitempty"`
}

// Skill is an OpenAI-tools-format tool definition.
type Skill struct {
	Name       string          `json:"name"`
	Definition json.RawMessage `json:"definition"`
}

// MCPEndpoint is a tool-server address an agent may route a single
// tool-call round trip to.
type MCPEndpoint struct {
	Name      string  `json:"name"`
	URL       string  `json:"url"`
	AuthToken *string `json:"authToken,omitempty"`
}

// ConfigurableFields is the set of fields both Tenant and Agent contribute
// to configuration inheritance (spec §4.3).
type ConfigurableFields struct {
	ProviderConfig  *ProviderConfig `json:"providerConfig,omitempty"`
	SystemPrompt    *string         `json:"systemPrompt,omitempty"`
	Skills          []Skill         `json:"skills,omitempty"`
	MCPEndpoints    []MCPEndpoint   `json:"mcpEndpoints,omitempty"`
	AvailableModels []string        `json:"availableModels,omitempty"`
}

// EncryptedPayload is the ciphertext/IV pair stored for any encrypted
// column (trace bodies, conversation message content, snapshot summaries).
type EncryptedPayload struct {
	Ciphertext []byte
	IV         []byte
}

func newID() uuid.UUID {
	return uuid.New()
}

func utcNow() time.Time {
	return time.Now().UTC()
}
