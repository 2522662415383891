// Package pipeline wires the transport, AI orchestrator, categorization
// engine, media-group aggregator, note builder and vault into the running
// service.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/stellarlinkco/tgvault/internal/ai"
	"github.com/stellarlinkco/tgvault/internal/bus"
	"github.com/stellarlinkco/tgvault/internal/category"
	"github.com/stellarlinkco/tgvault/internal/channel"
	"github.com/stellarlinkco/tgvault/internal/config"
	"github.com/stellarlinkco/tgvault/internal/digest"
	"github.com/stellarlinkco/tgvault/internal/group"
	"github.com/stellarlinkco/tgvault/internal/logger"
	"github.com/stellarlinkco/tgvault/internal/note"
	"github.com/stellarlinkco/tgvault/internal/vault"
)

const defaultBufSize = 64

// Options for creating a Pipeline
type Options struct {
	BotFactory channel.BotFactory
	SignalChan chan os.Signal // for testing signal handling
	ConfigPath string         // for testing hot-reload; empty uses the default
}

type Pipeline struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	telegram   *channel.TelegramChannel
	orch       *ai.Orchestrator
	engine     *category.Engine
	classifier *category.Classifier
	builder    *note.Builder
	vault      *vault.Vault
	aggregator *group.Aggregator
	digest     *digest.Service
	inflight   *group.Counter
	log        zerolog.Logger

	configPath string
	signalChan chan os.Signal
	wg         sync.WaitGroup
}

// New creates a Pipeline with default options
func New(cfg *config.Config, log zerolog.Logger) (*Pipeline, error) {
	return NewWithOptions(cfg, log, Options{})
}

// NewWithOptions creates a Pipeline with custom options for testing
func NewWithOptions(cfg *config.Config, log zerolog.Logger, opts Options) (*Pipeline, error) {
	if cfg.Vault.Root == "" {
		return nil, fmt.Errorf("vault root is required")
	}

	p := &Pipeline{
		cfg:        cfg,
		bus:        bus.NewMessageBus(defaultBufSize),
		inflight:   &group.Counter{},
		log:        log,
		configPath: opts.ConfigPath,
		signalChan: opts.SignalChan,
	}
	if p.configPath == "" {
		p.configPath = config.ConfigPath()
	}

	delimiter := ""
	if cfg.Notes.Delimiter {
		delimiter = vault.DefaultDelimiter
	}
	p.vault = vault.New(cfg.Vault.Root, delimiter, logger.Component(log, "vault"))

	p.orch = ai.NewOrchestrator(cfg.AI, logger.Component(log, "ai"))
	p.classifier = category.NewClassifier(p.orch, logger.Component(log, "classifier"))

	persist := func(cats []category.Category, rules []category.Rule) error {
		cfg.Categories.Categories = cats
		cfg.Categories.Rules = rules
		return config.SaveConfigTo(p.configPath, cfg)
	}
	p.engine = category.NewEngine(category.Options{
		Enabled:           cfg.Categories.Enabled,
		AIClassification:  cfg.Categories.AIClassification,
		DefaultCategoryID: cfg.Categories.DefaultCategoryID,
		Classifier:        p.classifier,
		Persist:           persist,
		Log:               logger.Component(log, "categories"),
	}, cfg.Categories.Categories, cfg.Categories.Rules)

	p.builder = note.NewBuilder(cfg.Notes, cfg.Categories, logger.Component(log, "note"))
	p.aggregator = group.NewAggregator(p.commitGroup, p.inflight, logger.Component(log, "group"))

	if cfg.Telegram.Enabled {
		factory := opts.BotFactory
		var tg *channel.TelegramChannel
		var err error
		if factory == nil {
			tg, err = channel.NewTelegramChannel(cfg.Telegram, p.bus, logger.Component(log, "telegram"))
		} else {
			tg, err = channel.NewTelegramChannelWithFactory(cfg.Telegram, p.bus, factory, logger.Component(log, "telegram"))
		}
		if err != nil {
			return nil, fmt.Errorf("create telegram channel: %w", err)
		}
		p.telegram = tg
	}

	if cfg.Digest.Enabled {
		schedule := cfg.Digest.Schedule
		if schedule == "" {
			schedule = config.DefaultDigestSchedule
		}
		p.digest = digest.NewService(schedule, p.vault, logger.Component(log, "digest"))
	}

	return p, nil
}

// Engine exposes the categorization engine for the CLI.
func (p *Pipeline) Engine() *category.Engine { return p.engine }

func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if p.telegram != nil {
		if err := p.telegram.Start(ctx); err != nil {
			return fmt.Errorf("start telegram: %w", err)
		}
	}
	if p.digest != nil {
		if err := p.digest.Start(ctx); err != nil {
			p.log.Warn().Err(err).Msg("digest start failed")
		}
	}

	go func() {
		err := config.Watch(ctx, p.configPath, func(fresh *config.Config) {
			p.engine.Reload(category.Options{
				Enabled:           fresh.Categories.Enabled,
				AIClassification:  fresh.Categories.AIClassification,
				DefaultCategoryID: fresh.Categories.DefaultCategoryID,
			}, fresh.Categories.Categories, fresh.Categories.Rules)
			p.log.Info().Msg("categories reloaded from config")
		})
		if err != nil && ctx.Err() == nil {
			p.log.Warn().Err(err).Msg("config watch stopped")
		}
	}()

	go p.processLoop(ctx)

	p.log.Info().Str("vault", p.cfg.Vault.Root).Msg("pipeline running")

	sigCh := p.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	p.log.Info().Msg("shutting down")
	return p.Shutdown(context.Background())
}

// Shutdown stops the transport, drains in-flight items and commits pending
// media groups.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if p.telegram != nil {
		_ = p.telegram.Stop()
	}
	if p.digest != nil {
		p.digest.Stop()
	}
	p.wg.Wait()
	p.aggregator.Flush(ctx)
	return nil
}

// processLoop fans each inbound envelope out to its own goroutine. The
// in-flight counter spans receive to persist so the aggregator never commits
// a group while a sibling is still being handled.
func (p *Pipeline) processLoop(ctx context.Context) {
	for {
		select {
		case env := <-p.bus.Inbound:
			p.inflight.Inc()
			p.wg.Add(1)
			go func(env bus.InboundEnvelope) {
				defer p.wg.Done()
				defer p.inflight.Dec()
				p.handle(ctx, env)
			}(env)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, env bus.InboundEnvelope) {
	item := env.Item

	if item.GroupID != "" {
		p.handleGroupMember(env)
		return
	}
	if item.HasAttachment() {
		p.handleFile(ctx, env)
		return
	}
	p.handleText(ctx, item)
}

// handleGroupMember saves the member's bytes and hands it to the aggregator.
// Files of grouped messages use the base attachment path because the group's
// category is not known until commit.
func (p *Pipeline) handleGroupMember(env bus.InboundEnvelope) {
	item := env.Item
	var filePath string
	dErr := env.DownloadErr
	if dErr == nil && env.Data != nil {
		rel, err := p.vault.SaveAttachment(p.builder.AttachmentPath(item, env.FileName, nil), env.Data)
		if err != nil {
			dErr = err
		} else {
			filePath = rel
		}
	}
	p.aggregator.Add(group.Item{Content: item, FilePath: filePath}, dErr)
}

func (p *Pipeline) handleText(ctx context.Context, item bus.ContentItem) {
	if note.IsURLOnly(item.Text) {
		// Bare links skip AI and land in the default category.
		var cat *category.Category
		if id := p.cfg.Categories.DefaultCategoryID; id != "" {
			if c, ok := p.engine.Category(id); ok {
				cat = &c
			}
		}
		n := p.builder.BuildText(item, item.Text, cat, nil)
		p.persistNote(item, n)
		return
	}

	content := item.Text
	if processed := p.orch.Process(ctx, item.Text, item.ContentType, nil); processed != "" {
		content = processed
	}

	// The enriched text drives categorization, not the raw message.
	cat := p.engine.Categorize(ctx, content, "")
	params := p.aiParams(ctx, content, cat)
	n := p.builder.BuildText(item, content, cat, params)
	p.persistNote(item, n)
}

func (p *Pipeline) handleFile(ctx context.Context, env bus.InboundEnvelope) {
	item := env.Item

	// Caption drives pre-categorization so the category's file-path override
	// can apply before the bytes are written.
	pathCat := p.engine.Categorize(ctx, item.Text, "")

	var filePath string
	var att *ai.Attachment
	dErr := env.DownloadErr
	if dErr == nil && env.Data != nil {
		rel, err := p.vault.SaveAttachment(p.builder.AttachmentPath(item, env.FileName, pathCat), env.Data)
		if err != nil {
			dErr = err
		} else {
			filePath = rel
			att = &ai.Attachment{
				Path:     filepath.Join(p.vault.Root(), filepath.FromSlash(rel)),
				MimeType: http.DetectContentType(env.Data),
			}
		}
	}
	if dErr != nil {
		p.log.Error().Err(dErr).Str("item", item.ID).Msg("attachment unavailable")
	}

	var content string
	if strings.TrimSpace(item.Text) != "" {
		content = p.orch.ProcessMixed(ctx, "", item.ContentType, item.Text, att)
		if content == "" {
			content = item.Text
		}
	} else {
		content = p.orch.Process(ctx, "", item.ContentType, att)
	}

	// The note's category resolves from the enriched content; the caption
	// category only routed the attachment bytes.
	cat := p.engine.Categorize(ctx, content, "")

	params := p.aiParams(ctx, content, cat)
	n := p.builder.BuildFile(item, filePath, content, cat, params, dErr)
	p.persistNote(item, n)
}

// commitGroup turns one completed media group into one note.
func (p *Pipeline) commitGroup(ctx context.Context, entry *group.Entry) {
	combined := entry.CombinedText()
	primary := entry.Primary()

	// The primary item's content type selects the prompt and processing
	// toggle for the whole group.
	content := combined
	if processed := p.orch.Process(ctx, combined, primary.ContentType, nil); processed != "" {
		content = processed
	}

	cat := p.engine.Categorize(ctx, content, "")
	params := p.aiParams(ctx, content, cat)
	n := p.builder.BuildGroup(entry, content, cat, params)
	p.persistNote(primary, n)
}

// aiParams generates values for {{ai:name}} template variables when any are
// referenced by the active path templates.
func (p *Pipeline) aiParams(ctx context.Context, content string, cat *category.Category) map[string]string {
	templates := []string{p.cfg.Notes.NotePathTemplate}
	if cat != nil {
		templates = append(templates, cat.NotePathTemplate)
	}
	names := note.AIParamNames(templates...)
	if len(names) == 0 || strings.TrimSpace(content) == "" {
		return nil
	}
	return p.orch.GenerateParams(ctx, content, names)
}

func (p *Pipeline) persistNote(item bus.ContentItem, n note.Note) {
	if err := p.vault.AppendNote(n.Path, n.Body); err != nil {
		p.log.Error().Err(err).Str("path", n.Path).Msg("note write failed")
		if p.telegram != nil && item.ChatID != "" {
			_ = p.telegram.SendText(item.ChatID, fmt.Sprintf("Failed to save note: %v", err))
		}
		return
	}
	p.log.Info().Str("path", n.Path).Str("item", item.ID).Msg("note saved")
}
