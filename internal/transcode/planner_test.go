package transcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vodarr/internal/media"
)

func testEntry(title string, resolution media.Resolution, container media.Container) media.Entry {
	return media.Entry{
		Title:      title,
		Resolution: resolution,
		Container:  container,
		Path:       "/videos/" + media.ComposeFilename(title, resolution, container),
	}
}

func targetKeys(targets []Target) map[media.Key]struct{} {
	keys := make(map[media.Key]struct{}, len(targets))
	for _, t := range targets {
		keys[t.Key()] = struct{}{}
	}
	return keys
}

func TestPlan_MissingVariantSynthesis(t *testing.T) {
	// A 720p+480p mkv pair must fan out to every container at 240p-720p,
	// with nothing above the 720p source.
	entries := []media.Entry{
		testEntry("Forrest_Gump", media.Resolution720p, media.ContainerMKV),
		testEntry("Forrest_Gump", media.Resolution480p, media.ContainerMKV),
	}

	targets := Plan(entries)
	require.Len(t, targets, 10)

	keys := targetKeys(targets)
	for _, container := range media.Containers() {
		for _, resolution := range media.ResolutionsUpTo(media.Resolution720p) {
			key := media.Key{Title: "Forrest_Gump", Resolution: resolution, Container: container}
			if container == media.ContainerMKV &&
				(resolution == media.Resolution720p || resolution == media.Resolution480p) {
				assert.NotContains(t, keys, key, "pre-existing variant must not be planned")
				continue
			}
			assert.Contains(t, keys, key)
		}
	}

	for _, target := range targets {
		assert.NotEqual(t, media.Resolution1080p, target.Resolution,
			"no variant above the best source")
		assert.Equal(t, media.Resolution720p, target.Source.Resolution,
			"source must be the highest-resolution entry")
		assert.Equal(t, media.ContainerMKV, target.Source.Container)
	}
}

func TestPlan_CompleteCatalog(t *testing.T) {
	var entries []media.Entry
	for _, container := range media.Containers() {
		for _, resolution := range media.ResolutionsUpTo(media.Resolution720p) {
			entries = append(entries, testEntry("Forrest_Gump", resolution, container))
		}
	}

	assert.Empty(t, Plan(entries), "a complete family plans nothing")
}

func TestPlan_Empty(t *testing.T) {
	assert.Empty(t, Plan(nil))
}

func TestPlan_SourceTieBreak(t *testing.T) {
	// Same height in avi and mp4: mp4 wins the tie.
	entries := []media.Entry{
		testEntry("Alien", media.Resolution480p, media.ContainerAVI),
		testEntry("Alien", media.Resolution480p, media.ContainerMP4),
	}

	targets := Plan(entries)
	require.NotEmpty(t, targets)
	for _, target := range targets {
		assert.Equal(t, media.ContainerMP4, target.Source.Container)
	}
}

func TestPlan_MultipleTitlesDeterministic(t *testing.T) {
	entries := []media.Entry{
		testEntry("Zulu", media.Resolution240p, media.ContainerMP4),
		testEntry("Alien", media.Resolution240p, media.ContainerMP4),
	}

	targets := Plan(entries)
	// 240p source: two missing containers per title.
	require.Len(t, targets, 4)
	assert.Equal(t, "Alien", targets[0].Source.Title)
	assert.Equal(t, "Alien", targets[1].Source.Title)
	assert.Equal(t, "Zulu", targets[2].Source.Title)
	assert.Equal(t, "Zulu", targets[3].Source.Title)

	again := Plan(entries)
	assert.Equal(t, targets, again, "plan output is deterministic")
}

func TestPlan_PerTitleCeilings(t *testing.T) {
	entries := []media.Entry{
		testEntry("Big", media.Resolution1080p, media.ContainerMP4),
		testEntry("Small", media.Resolution240p, media.ContainerMP4),
	}

	targets := Plan(entries)
	for _, target := range targets {
		switch target.Source.Title {
		case "Small":
			assert.Equal(t, media.Resolution240p, target.Resolution)
		case "Big":
			assert.LessOrEqual(t, target.Resolution.Height(), 1080)
		}
	}

	keys := targetKeys(targets)
	assert.NotContains(t, keys, media.Key{
		Title: "Small", Resolution: media.Resolution360p, Container: media.ContainerMP4,
	})
}
