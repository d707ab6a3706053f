package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/topicforge/topicforge/pkg/models"
	"github.com/topicforge/topicforge/pkg/store"
)

// promptVersion is part of every artifact fingerprint. Bump it whenever a
// platform prompt changes so stale cached artifacts stop matching.
const promptVersion = "v1"

// Supported target platforms for content generation.
var supportedPlatforms = map[string]string{
	"instagram-carousel": "an Instagram carousel: 6-8 slides, each with a short headline and 1-2 sentences of body text",
	"instagram-reel":     "an Instagram reel script: a 30-45 second spoken script with a hook in the first 3 seconds",
	"youtube":            "a YouTube video outline: title, hook, chaptered outline, and a closing call to action",
	"linkedin":           "a LinkedIn post: 150-250 words, professional tone, ending with a discussion question",
}

// Generator is the LLM surface the generator service needs.
type Generator interface {
	GenerateJSON(ctx context.Context, systemInstruction, userPrompt string) (string, error)
}

// GenerateResult is a produced (or cached) content artifact.
type GenerateResult struct {
	Fingerprint string `json:"fingerprint"`
	Platform    string `json:"platform"`
	Format      string `json:"format"`
	Artifact    string `json:"artifact"`
	Cached      bool   `json:"cached"`
}

// GeneratorService produces platform-specific content artifacts for
// completed topics, memoized through the store's fingerprint cache.
type GeneratorService struct {
	store     *store.Store
	generator Generator
}

// NewGeneratorService creates a new GeneratorService.
func NewGeneratorService(st *store.Store, gen Generator) *GeneratorService {
	if st == nil {
		panic("NewGeneratorService: store must not be nil")
	}
	if gen == nil {
		panic("NewGeneratorService: generator must not be nil")
	}
	return &GeneratorService{store: st, generator: gen}
}

// Generate returns the content artifact for (queue item, platform, format).
// A cache hit short-circuits the LLM entirely; a miss generates, persists,
// and returns the new artifact.
func (s *GeneratorService) Generate(ctx context.Context, queueID int64, platform, format string) (*GenerateResult, error) {
	platformBrief, ok := supportedPlatforms[platform]
	if !ok {
		return nil, NewValidationError("platform", fmt.Sprintf("unsupported platform %q", platform))
	}
	if format == "" {
		format = "default"
	}

	item, err := s.store.GetItem(ctx, queueID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if item.State != models.StateCompleted {
		return nil, ErrInvalidState
	}

	topic, err := s.store.GetTopicByQueueID(ctx, queueID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	fp := Fingerprint(topic.ID, platform, format, promptVersion)
	if cached, hit, err := s.store.GetArtifact(ctx, fp); err != nil {
		return nil, err
	} else if hit {
		return &GenerateResult{
			Fingerprint: fp,
			Platform:    platform,
			Format:      format,
			Artifact:    cached,
			Cached:      true,
		}, nil
	}

	artifact, err := s.generator.GenerateJSON(ctx,
		generatorInstruction(platformBrief, format),
		generatorPrompt(topic))
	if err != nil {
		return nil, fmt.Errorf("generate artifact: %w", err)
	}

	if err := s.store.PutArtifact(ctx, fp, artifact); err != nil {
		return nil, err
	}
	return &GenerateResult{
		Fingerprint: fp,
		Platform:    platform,
		Format:      format,
		Artifact:    artifact,
		Cached:      false,
	}, nil
}

// Fingerprint derives the stable cache key for one artifact. Identical
// inputs always map to the same key, so regeneration is free after the
// first call per prompt version.
func Fingerprint(topicID int64, platform, format, version string) string {
	h := xxhash.New()
	_, _ = h.WriteString(strconv.FormatInt(topicID, 10))
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(platform)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(format)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(version)
	return fmt.Sprintf("%016x", h.Sum64())
}

func generatorInstruction(platformBrief, format string) string {
	return fmt.Sprintf(`You are a technical content writer. Produce %s in the %q format variant.
Respond with a single JSON object: {"artifact": "<the full content as one string>"}.`,
		platformBrief, format)
}

func generatorPrompt(topic *models.Topic) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", topic.Title)
	fmt.Fprintf(&sb, "Description: %s\n", topic.Description)
	fmt.Fprintf(&sb, "Category: %s\n", topic.Category)
	fmt.Fprintf(&sb, "Complexity: %s\n", topic.ComplexityLevel)
	if len(topic.Tags) > 0 {
		fmt.Fprintf(&sb, "Tags: %s\n", strings.Join(topic.Tags, ", "))
	}
	if len(topic.Technologies) > 0 {
		fmt.Fprintf(&sb, "Technologies: %s\n", strings.Join(topic.Technologies, ", "))
	}
	return sb.String()
}
