package gateway

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wilson/dataroom/internal/agent"
	"github.com/wilson/dataroom/internal/dataloader"
	"github.com/wilson/dataroom/internal/observability"
)

const welcomeText = `Welcome to the data room.

Upload a CSV or XLSX file (max 10MB), then ask questions about it in plain language.

Commands:
/schema - column types and samples
/info - row and column counts
/preview - first rows of the table
/clear - clear the conversation, keep the data
/reset - drop everything and start over`

// maxReplyLength is Telegram's message size limit.
const maxReplyLength = 4096

// TelegramGateway fronts the orchestrator registry over Telegram.
// Each chat is its own session: document uploads load data into the
// chat's orchestrator, plain text becomes a query against it.
type TelegramGateway struct {
	Bot      *tgbotapi.BotAPI
	Registry *agent.SessionRegistry
	Logger   *observability.Logger
}

func NewTelegramGateway(token string, registry *agent.SessionRegistry, logger *observability.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:      bot,
		Registry: registry,
		Logger:   logger,
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		chatID := update.Message.Chat.ID
		sessionID := fmt.Sprintf("%d", chatID)
		orch := tg.Registry.Get(sessionID)

		switch {
		case update.Message.Document != nil:
			tg.handleUpload(orch, chatID, update.Message.Document)
		case update.Message.IsCommand():
			tg.handleCommand(orch, sessionID, chatID, update.Message.Command())
		case update.Message.Text != "":
			tg.handleQuestion(orch, sessionID, chatID, update.Message.Text)
		}
	}
	return nil
}

func (tg *TelegramGateway) handleUpload(orch *agent.Orchestrator, chatID int64, doc *tgbotapi.Document) {
	log.Printf("[%d] upload: %s (%d bytes)", chatID, doc.FileName, doc.FileSize)

	// Cheap rejection before downloading anything.
	if doc.FileSize > dataloader.MaxFileSizeBytes {
		tg.reply(chatID, "File size exceeds 10MB limit. Please upload a smaller file.")
		return
	}

	data, err := tg.downloadDocument(doc.FileID)
	if err != nil {
		log.Printf("Error downloading document: %v", err)
		tg.reply(chatID, "I couldn't download that file, please try again.")
		return
	}

	ok, msg := orch.LoadData(data, doc.FileName)
	if !ok {
		tg.reply(chatID, msg)
		return
	}
	tg.reply(chatID, msg+"\n\n"+orch.DataInfo())
}

func (tg *TelegramGateway) handleCommand(orch *agent.Orchestrator, sessionID string, chatID int64, command string) {
	switch command {
	case "start":
		tg.reply(chatID, welcomeText)
	case "schema":
		tg.reply(chatID, orch.DataSchema())
	case "info":
		tg.reply(chatID, orch.DataInfo())
	case "preview":
		if preview := orch.DataPreview(5); preview != nil {
			tg.reply(chatID, preview.String())
		} else {
			tg.reply(chatID, "No data loaded.")
		}
	case "clear":
		orch.ClearConversation()
		tg.reply(chatID, "Conversation cleared. The data stays loaded.")
	case "reset":
		orch.Reset()
		if tg.Logger != nil {
			tg.Logger.LogSession(sessionID, "reset")
		}
		tg.reply(chatID, "Everything cleared. Upload a file to start over.")
	default:
		tg.reply(chatID, "Unknown command. Try /start for help.")
	}
}

func (tg *TelegramGateway) handleQuestion(orch *agent.Orchestrator, sessionID string, chatID int64, question string) {
	log.Printf("[%d] %s", chatID, question)

	result := orch.ProcessQuery(context.Background(), question)
	if tg.Logger != nil {
		tg.Logger.LogExecution(sessionID, result.Success, result.ImagePath)
	}

	if !result.Success {
		tg.reply(chatID, result.Error)
		return
	}

	reply := result.Answer
	if result.PlanDisplay != "" {
		reply = result.PlanDisplay + "\n\n" + reply
	}
	if result.ResultTable != nil {
		reply += "\n\n" + result.ResultTable.String()
	}
	tg.reply(chatID, reply)

	if result.ImagePath != "" {
		chart := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(result.ImagePath))
		chart.Caption = "Rendered chart"
		if _, err := tg.Bot.Send(chart); err != nil {
			log.Printf("Error sending chart: %v", err)
		}
	}
}

func (tg *TelegramGateway) downloadDocument(fileID string) ([]byte, error) {
	file, err := tg.Bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, err
	}

	resp, err := http.Get(file.Link(tg.Bot.Token))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download failed: %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, dataloader.MaxFileSizeBytes+1))
}

// truncateReply caps a message at Telegram's byte limit, cutting on a
// rune boundary so the ellipsis never follows a split character.
func truncateReply(text string) string {
	const ellipsis = "…"
	if len(text) <= maxReplyLength {
		return text
	}
	cut := maxReplyLength - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + ellipsis
}

func (tg *TelegramGateway) reply(chatID int64, text string) {
	if text == "" {
		return
	}
	msg := tgbotapi.NewMessage(chatID, truncateReply(text))
	if _, err := tg.Bot.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id := int64(0)
	fmt.Sscanf(chatID, "%d", &id)
	if id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, text)
	_, err := tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
