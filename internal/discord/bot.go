// Package discord delivers the build conversation over Discord. It is a thin
// transport: commands and messages route into the flow machine, replies
// render as embeds.
package discord

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/colbyharris/pcforge/internal/flow"
	"github.com/colbyharris/pcforge/internal/history"
	"github.com/colbyharris/pcforge/internal/session"
	"github.com/colbyharris/pcforge/pkg/utils"
)

const commandPrefix = "!"

// turnTimeout bounds one full message turn including generation calls
const turnTimeout = 2 * time.Minute

// Pinger checks the generation backend's reachability for !health
type Pinger interface {
	Ping(ctx context.Context) error
}

// CatalogChecker reports whether the parts catalog is loadable
type CatalogChecker interface {
	CheckCatalog() error
}

// Bot represents the Discord bot instance
type Bot struct {
	config  *utils.Config
	dg      *discordgo.Session
	machine *flow.Machine
	store   *session.Store
	builds  *history.Log
	llm     Pinger
	catalog CatalogChecker

	startedAt time.Time
}

// NewBot creates the bot from config. Fails on a missing token so a
// misconfigured deploy dies at startup, not at first message
func NewBot(cfg *utils.Config, machine *flow.Machine, store *session.Store, builds *history.Log, llm Pinger, catalog CatalogChecker) (*Bot, error) {
	token := cfg.Get("DISCORD_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN not set in config or environment")
	}

	dg, err := discordgo.New("Bot " + strings.TrimPrefix(token, "Bot "))
	if err != nil {
		return nil, err
	}

	b := &Bot{
		config:  cfg,
		dg:      dg,
		machine: machine,
		store:   store,
		builds:  builds,
		llm:     llm,
		catalog: catalog,
	}

	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsDirectMessages

	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onMessageCreate)

	return b, nil
}

// Start the bot and connect to Discord
func (b *Bot) Start() error {
	b.startedAt = time.Now()
	return b.dg.Open()
}

// Stop the bot and clean up resources
func (b *Bot) Stop() error {
	return b.dg.Close()
}

// onReady is called when the bot is ready
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("[DISCORD]: Logged in as: %s#%s", r.User.Username, r.User.Discriminator)
}

// onMessageCreate handles incoming messages. Each turn runs in its own
// goroutine; the store's per-user lock serializes turns from the same user
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	content := strings.TrimSpace(m.Content)
	if content == "" {
		return
	}

	userID, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil {
		log.Printf("[DISCORD]: unparseable author id %q: %v", m.Author.ID, err)
		return
	}

	if strings.HasPrefix(content, commandPrefix) {
		go b.handleCommand(m.ChannelID, userID, strings.ToLower(strings.TrimPrefix(content, commandPrefix)))
		return
	}

	go b.handleMessage(m.ChannelID, userID, content)
}

// handleCommand dispatches the prefix commands
func (b *Bot) handleCommand(channelID string, userID int64, command string) {
	switch command {
	case "build":
		b.sendReplies(channelID, b.machine.Start(userID))
	case "status":
		b.sendReplies(channelID, b.machine.Status(userID))
	case "parts":
		b.sendParts(channelID, userID)
	case "cancel":
		b.sendReplies(channelID, b.machine.Cancel(userID))
	case "restart":
		b.sendReplies(channelID, b.machine.Restart(userID))
	case "health":
		b.sendHealth(channelID)
	case "collective":
		b.sendCollective(channelID)
	}
}

// handleMessage drives one conversation turn for users with an active session
func (b *Bot) handleMessage(channelID string, userID int64, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()

	b.sendReplies(channelID, b.machine.Handle(ctx, userID, content))
}

// sendParts shows the current build document, or a pointer to !build
func (b *Bot) sendParts(channelID string, userID int64) {
	sess, ok := b.store.Get(userID)
	if !ok || sess.BuildResult == "" {
		b.sendReplies(channelID, []flow.Reply{{
			Kind:  flow.KindInfo,
			Title: "No Build Yet",
			Body:  "You don't have a generated build yet. Use `!build` to get started!",
		}})
		return
	}

	b.sendReplies(channelID, []flow.Reply{{
		Kind:  flow.KindBuild,
		Title: "Your Current Build",
		Body:  sess.BuildResult,
	}})
}

// sendHealth reports backend reachability, catalog presence, and load
func (b *Bot) sendHealth(channelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	llmStatus := "✅ reachable"
	if err := b.llm.Ping(ctx); err != nil {
		llmStatus = "❌ " + err.Error()
	}

	catalogStatus := "✅ loaded"
	if err := b.catalog.CheckCatalog(); err != nil {
		catalogStatus = "❌ " + err.Error()
	}

	body := fmt.Sprintf(
		"Generation backend: %s\nParts catalog: %s\nActive sessions: %d\nUptime: %s",
		llmStatus, catalogStatus, b.store.Count(), time.Since(b.startedAt).Round(time.Second),
	)
	b.sendReplies(channelID, []flow.Reply{{Kind: flow.KindInfo, Title: "Bot Health", Body: body}})
}

// sendCollective shares the collective builds log, inline when it fits and
// as a file attachment when it doesn't
func (b *Bot) sendCollective(channelID string) {
	content, err := b.builds.Read()
	if err != nil {
		log.Printf("[DISCORD]: read collective log: %v", err)
		b.sendReplies(channelID, []flow.Reply{{
			Kind:  flow.KindError,
			Title: "Oops",
			Body:  "Couldn't read the collective builds log right now.",
		}})
		return
	}

	if content == "" {
		b.sendReplies(channelID, []flow.Reply{{
			Kind:  flow.KindInfo,
			Title: "Collective Builds",
			Body:  "No builds recorded yet. Finish a build with `!build` to be the first!",
		}})
		return
	}

	if len(content) <= embedBodyLimit {
		b.sendReplies(channelID, []flow.Reply{{Kind: flow.KindInfo, Title: "Collective Builds", Body: content}})
		return
	}

	_, err = b.dg.ChannelFileSend(channelID, "collective_builds.txt", strings.NewReader(content))
	if err != nil {
		log.Printf("[DISCORD]: send collective file: %v", err)
	}
}

// sendReplies renders flow replies as embeds, chunking long bodies
func (b *Bot) sendReplies(channelID string, replies []flow.Reply) {
	for _, r := range replies {
		for i, chunk := range chunkString(r.Body, embedBodyLimit) {
			title := r.Title
			if i > 0 {
				title = ""
			}
			embed := &discordgo.MessageEmbed{
				Title:       title,
				Description: chunk,
				Color:       kindColor(r.Kind),
			}
			if _, err := b.dg.ChannelMessageSendEmbed(channelID, embed); err != nil {
				log.Printf("[DISCORD]: send embed to %s: %v", channelID, err)
			}
		}
	}
}
