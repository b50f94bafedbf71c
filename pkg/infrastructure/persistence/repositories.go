package persistence

import (
	"errors"

	skilldomain "github.com/lucci-labs/luccibot/pkg/domain/skill"
)

// ---------------------------------------------------------------------------
// Skill metrics repository
// ---------------------------------------------------------------------------

// SkillMetricsRepository keeps skill execution metrics in one JSON document
// so they survive restarts and can be listed by a separate process.
type SkillMetricsRepository struct {
	file *JSONFile[map[string]skilldomain.SkillMetrics]
}

// NewSkillMetricsRepository stores metrics at path.
func NewSkillMetricsRepository(path string) *SkillMetricsRepository {
	return &SkillMetricsRepository{file: NewJSONFile[map[string]skilldomain.SkillMetrics](path, 0644)}
}

// Load returns the stored metrics; a missing document is an empty set.
func (r *SkillMetricsRepository) Load() (map[string]skilldomain.SkillMetrics, error) {
	doc, err := r.file.Read()
	if errors.Is(err, ErrNotExist) {
		return map[string]skilldomain.SkillMetrics{}, nil
	}
	if err != nil {
		return nil, err
	}
	if *doc == nil {
		return map[string]skilldomain.SkillMetrics{}, nil
	}
	return *doc, nil
}

// Save replaces the stored metrics.
func (r *SkillMetricsRepository) Save(metrics map[string]skilldomain.SkillMetrics) error {
	return r.file.Write(&metrics)
}

var _ skilldomain.MetricsRepository = (*SkillMetricsRepository)(nil)
