// Package fifteen is a fifteen-puzzle chat game played with keyboard buttons.
package fifteen

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/m3rciful/bitrixbot/core/bitrix"
	"github.com/m3rciful/bitrixbot/core/bitrix/client"
	"github.com/m3rciful/bitrixbot/core/bitrix/commands"
	"github.com/m3rciful/bitrixbot/core/bitrix/event"
	"github.com/m3rciful/bitrixbot/core/bitrix/filter"
	"github.com/m3rciful/bitrixbot/core/bitrix/router"
	"github.com/m3rciful/bitrixbot/core/bitrix/state"
	"github.com/m3rciful/bitrixbot/core/bootstrap"
	"github.com/m3rciful/bitrixbot/core/logger"
)

// FSM data keys.
const (
	KeyBoard   = "game_state"
	KeyMessage = "game_message"
	KeyMoves   = "game_moves"
)

const (
	title          = "Игра в пятнашки"
	solvedTitle    = "Пятнашки собраны за %d ходов!"
	abandonedTitle = "Игра прервана"
)

var (
	game = state.NewGroup("fifteen")
	// Playing is set while a board is on screen.
	Playing = game.Add("playing")
)

// Messenger is the part of the REST client the game needs. Board redraws
// go out synchronously so presses apply in order; closing updates that
// nothing follows are queued.
type Messenger interface {
	SendMessage(ctx context.Context, msg client.Message) (int64, error)
	UpdateMessage(ctx context.Context, u client.Update) error
	UpdateMessageAsync(ctx context.Context, u client.Update) error
}

// Game wires the puzzle to a messenger.
type Game struct {
	bx  Messenger
	rng *rand.Rand
}

// New builds a game. A nil rng uses the global source.
func New(bx Messenger, rng *rand.Rand) *Game {
	return &Game{bx: bx, rng: rng}
}

// Router answers the start phrases and tile presses.
func (g *Game) Router() *router.Router {
	return router.New("fifteen").
		Message("start", g.start, filter.Or(filter.TextEquals("пятнашки"), filter.TextEquals("fifteen"))).
		Command("move", g.move, filter.CommandNameEquals(MoveCommand), Playing)
}

// Command is the descriptor registered with the portal so tile buttons fire events.
func Command() commands.Command {
	return commands.Command{
		Command: MoveCommand,
		Title:   "Сдвинуть фишку",
		Params:  "номер фишки",
	}
}

// Module installs the game into a bootstrapped bot.
func Module(rng *rand.Rand) bootstrap.Module {
	return bootstrap.ModuleFunc{
		ModuleName: "fifteen",
		Fn: func(_ context.Context, app *bootstrap.Result, reg *bitrix.Registry) error {
			if app.Client == nil || app.Dispatcher == nil {
				return fmt.Errorf("fifteen: client and dispatcher are required")
			}
			app.Dispatcher.AddRouter(New(app.Client, rng).Router())
			reg.Register(Command())
			return nil
		},
	}
}

func (g *Game) start(ctx context.Context, ev event.Event, fsm *state.Context) error {
	if prev, ok := fsm.Int64(KeyMessage); ok && prev != 0 && fsm.State() == Playing {
		if err := g.bx.UpdateMessageAsync(ctx, client.Update{
			DialogID:  ev.DialogID(),
			MessageID: prev,
			Text:      abandonedTitle,
		}); err != nil {
			logger.Warn(ctx, "app", "fifteen.abandon",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}

	board := NewBoard(g.rng)
	id, err := g.bx.SendMessage(ctx, client.Message{
		DialogID: ev.DialogID(),
		Text:     title,
		Keyboard: board.Keyboard(),
	})
	if err != nil {
		return err
	}
	fsm.UpdateData(map[string]any{
		KeyBoard:   board,
		KeyMessage: id,
		KeyMoves:   0,
	})
	fsm.SetState(Playing)
	logger.Debug(ctx, "app", "fifteen.start", slog.String("status", "ok"))
	return nil
}

func (g *Game) move(ctx context.Context, ev event.Event, fsm *state.Context) error {
	num, err := ev.CommandParamsInt()
	if err != nil {
		num = 0
	}

	var (
		board Board
		moves int
		found bool
		moved bool
	)
	fsm.Update(func(data map[string]any) {
		board, found = data[KeyBoard].(Board)
		if !found {
			return
		}
		moves, _ = data[KeyMoves].(int)
		if board.Move(int(num)) {
			moved = true
			moves++
			data[KeyBoard] = board
			data[KeyMoves] = moves
		}
	})
	if !found {
		fsm.ClearState()
		return nil
	}

	solved := moved && board.Solved()
	update := client.Update{Event: ev, Text: title, Keyboard: board.Keyboard()}
	send := g.bx.UpdateMessage
	if solved {
		update.Text = fmt.Sprintf(solvedTitle, moves)
		update.Keyboard = nil
		send = g.bx.UpdateMessageAsync
	}
	if err := send(ctx, update); err != nil {
		return err
	}
	if id := ev.MessageID(); id != 0 {
		fsm.Set(KeyMessage, id)
	}
	if solved {
		fsm.Reset()
		logger.Info(ctx, "app", "fifteen.solved",
			slog.String("status", "ok"),
			slog.Int("count", moves),
		)
	}
	return nil
}
