package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/config"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/storage/localfs"
)

func TestBuildProvidersSkipsProvidersWithoutKeys(t *testing.T) {
	providers, err := buildProviders(config.Config{
		ProviderPriority: []string{"gemini", "openai", "ollama", "claude"},
		OpenAIAPIKey:     "sk-test",
		OllamaURL:        "http://localhost:11434",
	}, nil)
	if err != nil {
		t.Fatalf("build providers: %v", err)
	}
	if len(providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(providers))
	}
	if providers[0].Name() != "openai" || providers[1].Name() != "ollama" {
		t.Fatalf("unexpected provider order: %s, %s", providers[0].Name(), providers[1].Name())
	}
}

func TestBuildProvidersFailsWhenNothingIsUsable(t *testing.T) {
	_, err := buildProviders(config.Config{ProviderPriority: []string{"gemini", "openai"}}, nil)
	if err == nil {
		t.Fatalf("expected error when no provider can be built")
	}
}

func TestLoadTaxonomyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	doc := "groups:\n  - type: implant\n    keywords: [pino]\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write taxonomy: %v", err)
	}

	taxonomy, err := loadTaxonomy(path)
	if err != nil {
		t.Fatalf("load taxonomy: %v", err)
	}
	if got := taxonomy.Classify("Pino de fibra"); got != domain.FindingImplant {
		t.Fatalf("expected implant, got %s", got)
	}

	if _, err := loadTaxonomy(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing taxonomy file")
	}
}

func TestLoadTaxonomyDefaultsWithoutPath(t *testing.T) {
	taxonomy, err := loadTaxonomy("")
	if err != nil {
		t.Fatalf("load default taxonomy: %v", err)
	}
	if got := taxonomy.Classify("Cárie oclusal profunda"); got != domain.FindingCaries {
		t.Fatalf("expected caries, got %s", got)
	}
}

func TestNewImageStoreSelectsBackend(t *testing.T) {
	store, err := newImageStore(context.Background(), config.Config{StorageBackend: "localfs", StoragePath: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("localfs store: %v", err)
	}
	if _, ok := store.(*localfs.Storage); !ok {
		t.Fatalf("expected *localfs.Storage, got %T", store)
	}

	if _, err := newImageStore(context.Background(), config.Config{StorageBackend: "s3"}, nil); err == nil {
		t.Fatalf("expected s3 backend without bucket to fail")
	}
	if _, err := newImageStore(context.Background(), config.Config{StorageBackend: "ftp"}, nil); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}
}
