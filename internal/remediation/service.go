package remediation

import (
	"context"
	"fmt"
	"strings"

	"crm-core/pkg/models"

	"go.uber.org/zap"
)

// SuggestionRepository интерфейс для работы с предложениями
type SuggestionRepository interface {
	GetByID(ctx context.Context, id int64) (*models.RemediationSuggestion, error)
	UpdatePatch(ctx context.Context, id int64, target models.PatchTarget, patchText string, payload *models.PatchPayload) error
}

// MetricsRecorder записывает метрики сгенерированных патчей
type MetricsRecorder interface {
	RecordRemediationPatch(target string)
}

// tagRule связывает тег проблемы со слоем конфигурации
type tagRule struct {
	tag    string
	target models.PatchTarget
}

// tagTable — таблица выбора слоя по тегу проблемы. Порядок значим:
// выигрывает первое совпадение сверху вниз, поэтому фактические ошибки
// стоят раньше поведенческих.
var tagTable = []tagRule{
	{"hallucinated_fact", models.PatchTargetBusinessFacts},
	{"wrong_business_info", models.PatchTargetBusinessFacts},
	{"missing_business_info", models.PatchTargetBusinessFacts},
	{"tool_misuse", models.PatchTargetWorkflowPolicy},
	{"premature_handoff", models.PatchTargetWorkflowPolicy},
	{"branch_violation", models.PatchTargetWorkflowPolicy},
	{"tone_mismatch", models.PatchTargetBasePrompt},
	{"off_brand_voice", models.PatchTargetBasePrompt},
	{"verbose_reply", models.PatchTargetBasePrompt},
	{"wrong_default", models.PatchTargetDefaultConfig},
	{"feature_toggle", models.PatchTargetDefaultConfig},
	{"skill_gap", models.PatchTargetVerticalMapping},
	{"modifier_missing", models.PatchTargetVerticalMapping},
	{"vertical_drift", models.PatchTargetVerticalMapping},
}

// layerFiles — подсказка с именем файла конфигурации для каждого слоя
var layerFiles = map[models.PatchTarget]string{
	models.PatchTargetBasePrompt:      "config/base_prompt.md",
	models.PatchTargetVerticalMapping: "config/vertical_mapping.yaml",
	models.PatchTargetWorkflowPolicy:  "config/workflow_policy.yaml",
	models.PatchTargetDefaultConfig:   "config/defaults.yaml",
	models.PatchTargetBusinessFacts:   "data/business_facts",
}

// Service представляет генератор патчей по предложениям. Патчи никогда
// не применяются к живой конфигурации автоматически.
type Service struct {
	suggestionRepo SuggestionRepository
	metrics        MetricsRecorder
	logger         *zap.Logger
}

// NewService создает новый генератор патчей
func NewService(suggestionRepo SuggestionRepository, metrics MetricsRecorder, logger *zap.Logger) *Service {
	return &Service{
		suggestionRepo: suggestionRepo,
		metrics:        metrics,
		logger:         logger,
	}
}

// Generate детерминированно выбирает слой, строит структурированный патч
// и его текстовое представление, сохраняет все три значения на
// предложении и возвращает их
func (s *Service) Generate(ctx context.Context, suggestionID int64) (*models.GeneratePatchResult, error) {
	suggestion, err := s.suggestionRepo.GetByID(ctx, suggestionID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения предложения: %w", err)
	}

	target := selectTarget(suggestion)
	payload := buildPayload(target, suggestion)
	patchText := renderPatch(target, payload, suggestion)

	if err := s.suggestionRepo.UpdatePatch(ctx, suggestionID, target, patchText, payload); err != nil {
		return nil, fmt.Errorf("ошибка сохранения патча: %w", err)
	}

	s.metrics.RecordRemediationPatch(string(target))
	s.logger.Info("патч сгенерирован",
		zap.Int64("suggestion_id", suggestionID),
		zap.String("patch_target", string(target)),
		zap.Strings("issue_tags", suggestion.IssueTags))

	return &models.GeneratePatchResult{
		Success:      true,
		PatchTarget:  target,
		PatchText:    patchText,
		PatchPayload: payload,
	}, nil
}

// selectTarget выбирает слой: явная распознанная подсказка детектора,
// иначе таблица тегов (первое совпадение), иначе vertical_mapping
func selectTarget(suggestion *models.RemediationSuggestion) models.PatchTarget {
	if hint, ok := suggestion.SuggestedChange["layer"]; ok {
		target := models.PatchTarget(hint)
		if target.IsValid() {
			return target
		}
	}

	tags := make(map[string]bool, len(suggestion.IssueTags))
	for _, tag := range suggestion.IssueTags {
		tags[tag] = true
	}
	for _, rule := range tagTable {
		if tags[rule.tag] {
			return rule.target
		}
	}

	return models.PatchTargetVerticalMapping
}

// buildPayload строит вариант объединения, соответствующий слою.
// Заполнен всегда ровно один вариант.
func buildPayload(target models.PatchTarget, suggestion *models.RemediationSuggestion) *models.PatchPayload {
	payload := &models.PatchPayload{Target: target}

	switch target {
	case models.PatchTargetVerticalMapping:
		payload.VerticalMapping = buildVerticalMapping(suggestion)
	case models.PatchTargetWorkflowPolicy:
		payload.WorkflowPolicy = buildWorkflowPolicy(suggestion)
	case models.PatchTargetBasePrompt:
		payload.BasePrompt = buildBasePrompt(suggestion)
	case models.PatchTargetDefaultConfig:
		payload.DefaultConfig = buildDefaultConfig(suggestion)
	case models.PatchTargetBusinessFacts:
		payload.BusinessFacts = buildBusinessFacts(suggestion)
	}

	return payload
}

func buildVerticalMapping(suggestion *models.RemediationSuggestion) *models.VerticalMappingChanges {
	changes := &models.VerticalMappingChanges{
		AddModifiers:    []string{},
		RemoveModifiers: []string{},
		AllowSkills:     []string{},
		RestrictSkills:  []string{},
	}

	if v := suggestion.SuggestedChange["add_modifier"]; v != "" {
		changes.AddModifiers = append(changes.AddModifiers, v)
	}
	if v := suggestion.SuggestedChange["remove_modifier"]; v != "" {
		changes.RemoveModifiers = append(changes.RemoveModifiers, v)
	}
	if v := suggestion.SuggestedChange["allow_skill"]; v != "" {
		changes.AllowSkills = append(changes.AllowSkills, v)
	}
	if v := suggestion.SuggestedChange["restrict_skill"]; v != "" {
		changes.RestrictSkills = append(changes.RestrictSkills, v)
	}

	// Пустая подсказка: переводим теги в предложенные модификаторы,
	// чтобы ревьюеру было с чего начать
	if len(changes.AddModifiers) == 0 && len(changes.RemoveModifiers) == 0 &&
		len(changes.AllowSkills) == 0 && len(changes.RestrictSkills) == 0 {
		for _, tag := range suggestion.IssueTags {
			changes.AddModifiers = append(changes.AddModifiers, "fix_"+tag)
		}
	}

	return changes
}

func buildWorkflowPolicy(suggestion *models.RemediationSuggestion) *models.WorkflowPolicyChanges {
	changes := &models.WorkflowPolicyChanges{
		ToolRules:    []models.ToolRule{},
		BranchRules:  []models.BranchRule{},
		Restrictions: []string{},
	}

	if tool := suggestion.SuggestedChange["tool"]; tool != "" {
		changes.ToolRules = append(changes.ToolRules, models.ToolRule{
			Tool:      tool,
			Enabled:   suggestion.SuggestedChange["tool_enabled"] != "false",
			Condition: suggestion.SuggestedChange["condition"],
		})
	}
	if branch := suggestion.SuggestedChange["branch"]; branch != "" {
		changes.BranchRules = append(changes.BranchRules, models.BranchRule{
			Branch: branch,
			Rule:   suggestion.SuggestedChange["rule"],
		})
	}

	for _, tag := range suggestion.IssueTags {
		changes.Restrictions = append(changes.Restrictions,
			fmt.Sprintf("не допускать повторения проблемы %q в канале %s", tag, suggestion.Channel))
	}

	return changes
}

func buildBasePrompt(suggestion *models.RemediationSuggestion) *models.BasePromptChanges {
	section := suggestion.SuggestedChange["section"]
	if section == "" {
		section = "tone_and_style"
	}
	content := suggestion.SuggestedChange["content"]
	if content == "" {
		content = fmt.Sprintf("Скорректировать поведение ассистента по проблемам: %s.",
			strings.Join(suggestion.IssueTags, ", "))
	}
	position := suggestion.SuggestedChange["position"]
	if position == "" {
		position = "append"
	}

	return &models.BasePromptChanges{
		Sections: []models.PromptSection{
			{Section: section, Content: content, Position: position},
		},
	}
}

func buildDefaultConfig(suggestion *models.RemediationSuggestion) *models.DefaultConfigChanges {
	changes := &models.DefaultConfigChanges{
		Toggles: make(map[string]models.ToggleRecommendation),
	}

	toggle := suggestion.SuggestedChange["toggle"]
	if toggle == "" {
		toggle = "strict_mode"
	}
	changes.Toggles[toggle] = models.ToggleRecommendation{
		Recommended: suggestion.SuggestedChange["recommended"] != "false",
		Reason: fmt.Sprintf("обнаружены проблемы: %s (вертикаль %s)",
			strings.Join(suggestion.IssueTags, ", "), suggestion.VerticalID),
	}

	return changes
}

func buildBusinessFacts(suggestion *models.RemediationSuggestion) *models.BusinessFactsChanges {
	changes := &models.BusinessFactsChanges{
		MissingFields: []models.MissingFact{},
		Note:          "Анкету онбординга не изменять автоматически: дополнение фактов выполняется вручную после проверки.",
	}

	if field := suggestion.SuggestedChange["field"]; field != "" {
		question := suggestion.SuggestedChange["question"]
		if question == "" {
			question = fmt.Sprintf("Уточните у клиента значение поля %q.", field)
		}
		changes.MissingFields = append(changes.MissingFields, models.MissingFact{
			Field:    field,
			Question: question,
		})
	} else {
		for _, tag := range suggestion.IssueTags {
			changes.MissingFields = append(changes.MissingFields, models.MissingFact{
				Field:    tag,
				Question: fmt.Sprintf("Какие факты о бизнесе нужны, чтобы исключить проблему %q?", tag),
			})
		}
	}

	return changes
}

// renderPatch строит текстовое представление патча: подсказка с файлом
// и маркированный список изменений. Чисто презентационная функция.
func renderPatch(target models.PatchTarget, payload *models.PatchPayload, suggestion *models.RemediationSuggestion) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Патч слоя %s\n", target)
	fmt.Fprintf(&b, "# Файл: %s\n", layerFiles[target])
	fmt.Fprintf(&b, "# Вертикаль: %s, канал: %s\n", suggestion.VerticalID, suggestion.Channel)
	fmt.Fprintf(&b, "# Теги: %s\n#\n", strings.Join(suggestion.IssueTags, ", "))

	switch target {
	case models.PatchTargetVerticalMapping:
		vm := payload.VerticalMapping
		for _, m := range vm.AddModifiers {
			fmt.Fprintf(&b, "# - добавить модификатор: %s\n", m)
		}
		for _, m := range vm.RemoveModifiers {
			fmt.Fprintf(&b, "# - убрать модификатор: %s\n", m)
		}
		for _, sk := range vm.AllowSkills {
			fmt.Fprintf(&b, "# - разрешить навык: %s\n", sk)
		}
		for _, sk := range vm.RestrictSkills {
			fmt.Fprintf(&b, "# - ограничить навык: %s\n", sk)
		}
	case models.PatchTargetWorkflowPolicy:
		wp := payload.WorkflowPolicy
		for _, r := range wp.ToolRules {
			fmt.Fprintf(&b, "# - инструмент %s: enabled=%t, условие: %s\n", r.Tool, r.Enabled, r.Condition)
		}
		for _, r := range wp.BranchRules {
			fmt.Fprintf(&b, "# - ветка %s: %s\n", r.Branch, r.Rule)
		}
		for _, r := range wp.Restrictions {
			fmt.Fprintf(&b, "# - ограничение: %s\n", r)
		}
	case models.PatchTargetBasePrompt:
		for _, sec := range payload.BasePrompt.Sections {
			fmt.Fprintf(&b, "# - секция %s (%s): %s\n", sec.Section, sec.Position, sec.Content)
		}
	case models.PatchTargetDefaultConfig:
		for name, rec := range payload.DefaultConfig.Toggles {
			fmt.Fprintf(&b, "# - переключатель %s -> %t (%s)\n", name, rec.Recommended, rec.Reason)
		}
	case models.PatchTargetBusinessFacts:
		for _, f := range payload.BusinessFacts.MissingFields {
			fmt.Fprintf(&b, "# - поле %s: %s\n", f.Field, f.Question)
		}
		fmt.Fprintf(&b, "# - примечание: %s\n", payload.BusinessFacts.Note)
	}

	return b.String()
}
