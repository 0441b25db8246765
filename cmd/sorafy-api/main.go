package main

import (
	"context"
	"log"
	"net/http"

	httpadapter "github.com/sorafy/sorafy-agent/internal/adapters/http"
	"github.com/sorafy/sorafy-agent/internal/adapters/llm"
	"github.com/sorafy/sorafy-agent/internal/adapters/storage/localstore"
	"github.com/sorafy/sorafy-agent/internal/app/controller"
	"github.com/sorafy/sorafy-agent/internal/app/repository"
	"github.com/sorafy/sorafy-agent/internal/config"
	"github.com/sorafy/sorafy-agent/internal/domain"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	store, err := localstore.Open(cfg.StorageDir)
	if err != nil {
		log.Fatalf("error opening local store: %v", err)
	}
	defer store.Close()

	var (
		model     domain.ModelClient
		analyzer  domain.ImageAnalyzer
		suggester domain.TitleSuggester
	)

	if cfg.UseMockLLM {
		log.Println("[LLM] Using MOCK model client")
		mock := llm.NewMockModel()
		model, analyzer, suggester = mock, mock, mock
	} else {
		log.Println("[LLM] Using Gemini model client")
		gemini, err := llm.NewGeminiClient(ctx, cfg.APIKey, cfg.ModelName)
		if err != nil {
			log.Fatalf("error initializing Gemini client: %v", err)
		}
		model, analyzer, suggester = gemini, gemini, gemini
	}

	repo := repository.New(store, suggester, domain.AppSettings{
		Theme:     cfg.Theme,
		Language:  cfg.UILanguage,
		DebugMode: cfg.DebugMode,
	})

	ctrl := controller.New(repo, model, llm.SystemPrompt)

	handler := httpadapter.NewServer(repo, ctrl, analyzer)

	addr := ":" + cfg.Port
	log.Println("Sorafy API listening on", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal(err)
	}
}
