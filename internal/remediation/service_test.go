package remediation

import (
	"context"
	"testing"

	"crm-core/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSuggestionRepo хранит предложения в памяти
type fakeSuggestionRepo struct {
	suggestions map[int64]*models.RemediationSuggestion
}

func (f *fakeSuggestionRepo) GetByID(ctx context.Context, id int64) (*models.RemediationSuggestion, error) {
	suggestion, ok := f.suggestions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return suggestion, nil
}

func (f *fakeSuggestionRepo) UpdatePatch(ctx context.Context, id int64, target models.PatchTarget, patchText string, payload *models.PatchPayload) error {
	suggestion := f.suggestions[id]
	targetStr := string(target)
	suggestion.PatchTarget = &targetStr
	suggestion.PatchText = &patchText
	suggestion.PatchPayload = payload
	return nil
}

// fakeMetrics копит слои сгенерированных патчей
type fakeMetrics struct {
	targets []string
}

func (f *fakeMetrics) RecordRemediationPatch(target string) {
	f.targets = append(f.targets, target)
}

func newTestService(suggestions ...*models.RemediationSuggestion) (*Service, *fakeSuggestionRepo) {
	repo := &fakeSuggestionRepo{suggestions: make(map[int64]*models.RemediationSuggestion)}
	for _, s := range suggestions {
		repo.suggestions[s.ID] = s
	}
	return NewService(repo, &fakeMetrics{}, zap.NewNop()), repo
}

func TestGenerateUsesValidLayerHint(t *testing.T) {
	svc, _ := newTestService(&models.RemediationSuggestion{
		ID:        1,
		IssueTags: []string{"tool_misuse"}, // тег указывает на workflow_policy
		SuggestedChange: map[string]string{
			"layer":   "base_prompt", // но явная подсказка важнее
			"content": "Отвечать короче.",
		},
	})

	result, err := svc.Generate(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, models.PatchTargetBasePrompt, result.PatchTarget)
	require.NotNil(t, result.PatchPayload.BasePrompt)
	assert.Nil(t, result.PatchPayload.WorkflowPolicy)
}

func TestGenerateIgnoresUnknownLayerHint(t *testing.T) {
	svc, _ := newTestService(&models.RemediationSuggestion{
		ID:              1,
		IssueTags:       []string{"tool_misuse"},
		SuggestedChange: map[string]string{"layer": "quantum_layer"},
	})

	result, err := svc.Generate(context.Background(), 1)
	require.NoError(t, err)

	// Нераспознанная подсказка отбрасывается, работает таблица тегов
	assert.Equal(t, models.PatchTargetWorkflowPolicy, result.PatchTarget)
}

func TestGenerateTagTableOrder(t *testing.T) {
	// hallucinated_fact стоит в таблице раньше tone_mismatch,
	// поэтому побеждает слой business_facts
	svc, _ := newTestService(&models.RemediationSuggestion{
		ID:        1,
		IssueTags: []string{"tone_mismatch", "hallucinated_fact"},
	})

	result, err := svc.Generate(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, models.PatchTargetBusinessFacts, result.PatchTarget)
}

func TestGenerateDefaultsToVerticalMapping(t *testing.T) {
	svc, _ := newTestService(&models.RemediationSuggestion{
		ID:        1,
		IssueTags: []string{"unknown_tag"},
	})

	result, err := svc.Generate(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, models.PatchTargetVerticalMapping, result.PatchTarget)
	require.NotNil(t, result.PatchPayload.VerticalMapping)
	assert.Equal(t, []string{"fix_unknown_tag"}, result.PatchPayload.VerticalMapping.AddModifiers)
}

func TestGenerateIsDeterministic(t *testing.T) {
	suggestion := &models.RemediationSuggestion{
		ID:         1,
		VerticalID: "dental",
		Channel:    "whatsapp",
		IssueTags:  []string{"verbose_reply", "skill_gap"},
	}
	svc, _ := newTestService(suggestion)

	first, err := svc.Generate(context.Background(), 1)
	require.NoError(t, err)

	second, err := svc.Generate(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, first.PatchTarget, second.PatchTarget)
	assert.Equal(t, first.PatchText, second.PatchText)
	assert.Equal(t, first.PatchPayload, second.PatchPayload)
}

func TestGeneratePersistsPatch(t *testing.T) {
	svc, repo := newTestService(&models.RemediationSuggestion{
		ID:        7,
		IssueTags: []string{"wrong_default"},
		SuggestedChange: map[string]string{
			"toggle": "auto_followup",
		},
	})

	result, err := svc.Generate(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, result.Success)

	stored := repo.suggestions[7]
	require.NotNil(t, stored.PatchTarget)
	assert.Equal(t, "default_config", *stored.PatchTarget)
	require.NotNil(t, stored.PatchText)
	assert.Equal(t, result.PatchText, *stored.PatchText)
	assert.Equal(t, result.PatchPayload, stored.PatchPayload)
}

func TestGenerateRecordsMetrics(t *testing.T) {
	repo := &fakeSuggestionRepo{suggestions: map[int64]*models.RemediationSuggestion{
		1: {ID: 1, IssueTags: []string{"hallucinated_fact"}},
	}}
	metrics := &fakeMetrics{}
	svc := NewService(repo, metrics, zap.NewNop())

	_, err := svc.Generate(context.Background(), 1)
	require.NoError(t, err)

	// Слой попадает в метрики только после успешного сохранения
	assert.Equal(t, []string{"business_facts"}, metrics.targets)

	_, err = svc.Generate(context.Background(), 999)
	require.Error(t, err)
	assert.Len(t, metrics.targets, 1)
}

func TestGenerateNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Generate(context.Background(), 999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// TestPayloadShapePerLayer проверяет, что для каждого слоя заполнен
// ровно один вариант объединения и его поля соответствуют слою
func TestPayloadShapePerLayer(t *testing.T) {
	cases := []struct {
		name   string
		tags   []string
		target models.PatchTarget
		check  func(t *testing.T, p *models.PatchPayload)
	}{
		{
			name:   "vertical_mapping",
			tags:   []string{"skill_gap"},
			target: models.PatchTargetVerticalMapping,
			check: func(t *testing.T, p *models.PatchPayload) {
				require.NotNil(t, p.VerticalMapping)
				assert.NotNil(t, p.VerticalMapping.AddModifiers)
				assert.NotNil(t, p.VerticalMapping.RestrictSkills)
			},
		},
		{
			name:   "workflow_policy",
			tags:   []string{"premature_handoff"},
			target: models.PatchTargetWorkflowPolicy,
			check: func(t *testing.T, p *models.PatchPayload) {
				require.NotNil(t, p.WorkflowPolicy)
				assert.NotNil(t, p.WorkflowPolicy.ToolRules)
				assert.NotNil(t, p.WorkflowPolicy.BranchRules)
				assert.NotEmpty(t, p.WorkflowPolicy.Restrictions)
			},
		},
		{
			name:   "base_prompt",
			tags:   []string{"tone_mismatch"},
			target: models.PatchTargetBasePrompt,
			check: func(t *testing.T, p *models.PatchPayload) {
				require.NotNil(t, p.BasePrompt)
				require.Len(t, p.BasePrompt.Sections, 1)
				assert.Equal(t, "append", p.BasePrompt.Sections[0].Position)
			},
		},
		{
			name:   "default_config",
			tags:   []string{"feature_toggle"},
			target: models.PatchTargetDefaultConfig,
			check: func(t *testing.T, p *models.PatchPayload) {
				require.NotNil(t, p.DefaultConfig)
				assert.NotEmpty(t, p.DefaultConfig.Toggles)
			},
		},
		{
			name:   "business_facts",
			tags:   []string{"missing_business_info"},
			target: models.PatchTargetBusinessFacts,
			check: func(t *testing.T, p *models.PatchPayload) {
				require.NotNil(t, p.BusinessFacts)
				assert.NotEmpty(t, p.BusinessFacts.MissingFields)
				assert.NotEmpty(t, p.BusinessFacts.Note)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newTestService(&models.RemediationSuggestion{
				ID:         1,
				VerticalID: "clinic",
				Channel:    "telegram",
				IssueTags:  tc.tags,
			})

			result, err := svc.Generate(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tc.target, result.PatchTarget)
			assert.Equal(t, tc.target, result.PatchPayload.Target)

			// Ровно один вариант объединения
			variants := 0
			p := result.PatchPayload
			for _, set := range []bool{
				p.VerticalMapping != nil,
				p.WorkflowPolicy != nil,
				p.BasePrompt != nil,
				p.DefaultConfig != nil,
				p.BusinessFacts != nil,
			} {
				if set {
					variants++
				}
			}
			assert.Equal(t, 1, variants)

			tc.check(t, result.PatchPayload)

			assert.Contains(t, result.PatchText, layerFiles[tc.target])
		})
	}
}
