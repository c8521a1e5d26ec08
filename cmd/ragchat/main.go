package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/log"
	"ragchat/internal/service"
	"ragchat/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath string
		lazy    bool
		ask     string
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/ragchat/config.yaml if not provided)")
	flag.BoolVar(&lazy, "lazy", false, "Connect to the vector index on the first question instead of at startup")
	flag.StringVar(&ask, "ask", "", "Answer a single question and exit")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		stdlog.Fatalf("failed to load config: %v", err)
	}
	cfg.Engine.LazyInit = resolveLazy(flag.CommandLine, lazy, cfg.Engine.LazyInit)

	if err := log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		stdlog.Fatalf("failed to init logger: %v", err)
	}
	defer log.Sync()
	log.Infow("[main] starting", "config", cfgPath, "vector_store", cfg.VectorStore.Type, "lazy", cfg.Engine.LazyInit)

	boot := service.NewBootstrap(cfg)

	if ask != "" {
		code := answerOnce(boot, ask)
		log.Sync()
		os.Exit(code)
	}

	m := tui.New(boot.Answerer, tui.Options{Lazy: cfg.Engine.LazyInit})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Error("[main] tui exited", err)
		log.Sync()
		stdlog.Fatal(err)
	}
}

// resolveLazy lets an explicit --lazy flag, true or false, override the configured value.
func resolveLazy(fs *flag.FlagSet, lazy, configured bool) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "lazy" {
			set = true
		}
	})
	if set {
		return lazy
	}
	return configured
}

// answerOnce runs a single question through the engine and prints the reply.
func answerOnce(boot *service.Bootstrap, question string) int {
	ctx := context.Background()
	engine, err := boot.Initialize(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	answer, err := engine.Answer(ctx, question)
	if err != nil {
		var upErr *domain.UpstreamError
		if errors.As(err, &upErr) {
			log.Error("[main] answer failed", err)
			fmt.Println(domain.FallbackReply)
			return 1
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(answer)
	return 0
}
