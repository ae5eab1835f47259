package models

import (
	"time"
)

// PatchTarget представляет один из пяти слоев конфигурации,
// к которому может относиться патч.
type PatchTarget string

const (
	PatchTargetBasePrompt      PatchTarget = "base_prompt"
	PatchTargetVerticalMapping PatchTarget = "vertical_mapping"
	PatchTargetWorkflowPolicy  PatchTarget = "workflow_policy"
	PatchTargetDefaultConfig   PatchTarget = "default_config"
	PatchTargetBusinessFacts   PatchTarget = "business_facts"
)

// IsValid проверяет, что слой входит в число пяти распознаваемых
func (pt PatchTarget) IsValid() bool {
	switch pt {
	case PatchTargetBasePrompt, PatchTargetVerticalMapping, PatchTargetWorkflowPolicy,
		PatchTargetDefaultConfig, PatchTargetBusinessFacts:
		return true
	default:
		return false
	}
}

// SuggestionStatus представляет жизненный цикл предложения
type SuggestionStatus string

const (
	SuggestionStatusDraft    SuggestionStatus = "draft"
	SuggestionStatusApproved SuggestionStatus = "approved"
	SuggestionStatusRejected SuggestionStatus = "rejected"
	SuggestionStatusApplied  SuggestionStatus = "applied"
)

// IsValid проверяет валидность статуса предложения
func (ss SuggestionStatus) IsValid() bool {
	switch ss {
	case SuggestionStatusDraft, SuggestionStatusApproved, SuggestionStatusRejected, SuggestionStatusApplied:
		return true
	default:
		return false
	}
}

// RemediationSuggestion представляет обнаруженную проблему качества
// и предложенное (никогда не применяемое автоматически) исправление
type RemediationSuggestion struct {
	ID              int64             `json:"id" db:"id"`
	VerticalID      string            `json:"vertical_id" db:"vertical_id"`
	Channel         string            `json:"channel" db:"channel"`
	IssueTags       []string          `json:"issue_tags" db:"issue_tags"`
	SuggestedChange map[string]string `json:"suggested_change" db:"suggested_change"` // Подсказка от детектора, включая необязательный ключ "layer"
	Status          string            `json:"status" db:"status"`
	PatchTarget     *string           `json:"patch_target" db:"patch_target"`
	PatchText       *string           `json:"patch_text" db:"patch_text"`
	PatchPayload    *PatchPayload     `json:"patch_payload" db:"patch_payload"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// PatchPayload представляет структурированный патч. Размеченное
// объединение: заполнен ровно один вариант, соответствующий Target.
type PatchPayload struct {
	Target          PatchTarget             `json:"target"`
	VerticalMapping *VerticalMappingChanges `json:"vertical_mapping,omitempty"`
	WorkflowPolicy  *WorkflowPolicyChanges  `json:"workflow_policy,omitempty"`
	BasePrompt      *BasePromptChanges      `json:"base_prompt,omitempty"`
	DefaultConfig   *DefaultConfigChanges   `json:"default_config,omitempty"`
	BusinessFacts   *BusinessFactsChanges   `json:"business_facts,omitempty"`
}

// VerticalMappingChanges — изменения слоя vertical_mapping
type VerticalMappingChanges struct {
	AddModifiers    []string `json:"addModifiers"`
	RemoveModifiers []string `json:"removeModifiers"`
	AllowSkills     []string `json:"allowSkills"`
	RestrictSkills  []string `json:"restrictSkills"`
}

// ToolRule — правило включения инструмента с условием применения
type ToolRule struct {
	Tool      string `json:"tool"`
	Enabled   bool   `json:"enabled"`
	Condition string `json:"condition"`
}

// BranchRule — текстовое правило для ветки диалога
type BranchRule struct {
	Branch string `json:"branch"`
	Rule   string `json:"rule"`
}

// WorkflowPolicyChanges — изменения слоя workflow_policy
type WorkflowPolicyChanges struct {
	ToolRules    []ToolRule   `json:"toolRules"`
	BranchRules  []BranchRule `json:"branchRules"`
	Restrictions []string     `json:"restrictions"`
}

// PromptSection — вставка в базовый промпт
type PromptSection struct {
	Section  string `json:"section"`
	Content  string `json:"content"`
	Position string `json:"position"` // before, after, append
}

// BasePromptChanges — изменения слоя base_prompt
type BasePromptChanges struct {
	Sections []PromptSection `json:"sections"`
}

// ToggleRecommendation — рекомендация по переключателю конфигурации
type ToggleRecommendation struct {
	Recommended bool   `json:"recommended"`
	Reason      string `json:"reason"`
}

// DefaultConfigChanges — изменения слоя default_config
type DefaultConfigChanges struct {
	Toggles map[string]ToggleRecommendation `json:"toggles"`
}

// MissingFact — отсутствующее поле анкеты и вопрос для онбординга
type MissingFact struct {
	Field    string `json:"field"`
	Question string `json:"question"`
}

// BusinessFactsChanges — изменения слоя business_facts
type BusinessFactsChanges struct {
	MissingFields []MissingFact `json:"missingFields"`
	Note          string        `json:"note"`
}

// GeneratePatchRequest представляет запрос на генерацию патча
type GeneratePatchRequest struct {
	SuggestionID int64 `json:"suggestionId"`
}

// GeneratePatchResult представляет результат генерации патча
type GeneratePatchResult struct {
	Success      bool          `json:"success"`
	PatchTarget  PatchTarget   `json:"patchTarget"`
	PatchText    string        `json:"patchText"`
	PatchPayload *PatchPayload `json:"patchPayload"`
}
