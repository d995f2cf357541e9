package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cl "bullpen/internal/cli"
	"bullpen/internal/config"
	"bullpen/internal/game"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "bpn",
		Short:        "Bullpen investment game client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newRoomCmd(&apiBase),
		newJoinCmd(&apiBase),
		newLeaveCmd(&apiBase),
		newWatchCmd(&apiBase),
		newTradeCmd(&apiBase, game.TradeBuy),
		newTradeCmd(&apiBase, game.TradeSell),
		newInfoCmd(&apiBase),
		newReportCmd(&apiBase),
		newAdminCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requestCtx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

// sessionRoom resolves the room code from an argument or the saved session.
func sessionRoom(args []string) (string, error) {
	if len(args) > 0 {
		return strings.ToUpper(strings.TrimSpace(args[0])), nil
	}
	session, err := cl.LoadSession()
	if err != nil {
		return "", err
	}
	return session.RoomID, nil
}

func newRoomCmd(apiBase *string) *cobra.Command {
	room := &cobra.Command{
		Use:   "room",
		Short: "Create and manage rooms",
	}

	var teams, rounds int
	create := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a room and become its admin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			var err error
			if len(args) > 0 {
				name = args[0]
			} else if name, err = promptRequired("Room name"); err != nil {
				return err
			}
			password, err := promptPassword("Admin password")
			if err != nil {
				return err
			}
			ctx, cancel := requestCtx(cmd)
			defer cancel()
			created, err := newClient(apiBase).CreateRoom(ctx, name, password, teams, rounds)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{RoomID: created.ID}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Room %q created.", created.Name))
			printJoinQR(*apiBase, created.ID)
			return nil
		},
	}
	create.Flags().IntVar(&teams, "teams", 4, "number of team slots")
	create.Flags().IntVar(&rounds, "rounds", 4, "number of rounds")

	show := &cobra.Command{
		Use:   "show [code]",
		Short: "Show a room and its join code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := sessionRoom(args)
			if err != nil {
				return err
			}
			ctx, cancel := requestCtx(cmd)
			defer cancel()
			room, err := newClient(apiBase).GetRoom(ctx, roomID)
			if err != nil {
				return err
			}
			printJoinQR(*apiBase, room.ID)
			renderRoom(room)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete [code]",
		Short: "Delete a room (admin, irreversible)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := sessionRoom(args)
			if err != nil {
				return err
			}
			password, err := promptPassword("Admin password")
			if err != nil {
				return err
			}
			ctx, cancel := requestCtx(cmd)
			defer cancel()
			if err := newClient(apiBase).DeleteRoom(ctx, roomID, password); err != nil {
				return err
			}
			_ = cl.ClearSession()
			printSuccess("Room deleted.")
			return nil
		},
	}

	room.AddCommand(create, show, del)
	return room
}

func newJoinCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "join <code> <team-number> <leader-name>",
		Short: "Claim a team slot in a room",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			teamNumber, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("team number must be an integer")
			}
			roomID := strings.ToUpper(strings.TrimSpace(args[0]))
			ctx, cancel := requestCtx(cmd)
			defer cancel()
			room, err := newClient(apiBase).JoinTeam(ctx, roomID, teamNumber, args[2])
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{RoomID: roomID, TeamNumber: teamNumber, LeaderName: args[2]}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Joined team %d as %s.", teamNumber, args[2]))
			renderRoom(room)
			return nil
		},
	}
}

func newLeaveCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Release your team slot (history stays)",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			if session.TeamNumber == 0 {
				return fmt.Errorf("session has no team, nothing to leave")
			}
			ctx, cancel := requestCtx(cmd)
			defer cancel()
			if _, err := newClient(apiBase).LeaveTeam(ctx, session.RoomID, session.TeamNumber); err != nil {
				return err
			}
			_ = cl.ClearSession()
			printSuccess("Left the team. Rejoin the same slot to resume.")
			return nil
		},
	}
}

func newWatchCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [code]",
		Short: "Follow the room live",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := sessionRoom(args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			printInfo("Watching " + roomID + " (ctrl-c to stop)...")
			err = newClient(apiBase).Watch(ctx, roomID, renderRoom)
			if err != nil {
				return err
			}
			printWarn("Stream ended.")
			return nil
		},
	}
}

func newTradeCmd(apiBase *string, tradeType game.TradeType) *cobra.Command {
	verb := "Buy"
	if tradeType == game.TradeSell {
		verb = "Sell"
	}
	return &cobra.Command{
		Use:   string(tradeType) + " <stock-id> <quantity>",
		Short: verb + " shares at the current round price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			if session.TeamNumber == 0 {
				return fmt.Errorf("join a team before trading")
			}
			qty, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("quantity must be an integer")
			}
			ctx, cancel := requestCtx(cmd)
			defer cancel()
			result, err := newClient(apiBase).Trade(ctx, session.RoomID, session.TeamNumber, tradeType, args[0], qty, 0)
			if err != nil {
				return err
			}
			txn := result.Transaction
			printSuccess(fmt.Sprintf("%s %d x %s @ %s (total %s). Cash: %s",
				verb, txn.Quantity, txn.StockID, formatMoney(txn.PricePerShare),
				formatMoney(txn.TotalAmount), formatMoney(result.CurrentCash)))
			return nil
		},
	}
}

func newInfoCmd(apiBase *string) *cobra.Command {
	info := &cobra.Command{
		Use:   "info",
		Short: "Information cards",
	}
	info.AddCommand(&cobra.Command{
		Use:   "buy <card-id>",
		Short: "Purchase an information card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			if session.TeamNumber == 0 {
				return fmt.Errorf("join a team before buying cards")
			}
			ctx, cancel := requestCtx(cmd)
			defer cancel()
			if _, err := newClient(apiBase).PurchaseInfo(ctx, session.RoomID, session.TeamNumber, args[0]); err != nil {
				return err
			}
			printSuccess("Card unlocked: " + args[0])
			return nil
		},
	})
	return info
}

func newReportCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "report [team-number]",
		Short: "Advisory report for a team",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			teamNumber := session.TeamNumber
			if len(args) > 0 {
				teamNumber, err = strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("team number must be an integer")
				}
			}
			if teamNumber == 0 {
				return fmt.Errorf("no team number given or in session")
			}
			ctx, cancel := requestCtx(cmd)
			defer cancel()
			report, err := newClient(apiBase).TeamReport(ctx, session.RoomID, teamNumber)
			if err != nil {
				return err
			}
			renderReport(report)
			return nil
		},
	}
}

func newAdminCmd(apiBase *string) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Admin controls (password required)",
	}

	run := func(fn func(ctx context.Context, c *cl.Client, roomID, password string) (game.Room, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			password, err := promptPassword("Admin password")
			if err != nil {
				return err
			}
			ctx, cancel := requestCtx(cmd)
			defer cancel()
			room, err := fn(ctx, newClient(apiBase), session.RoomID, password)
			if err != nil {
				return err
			}
			renderRoom(room)
			return nil
		}
	}

	admin.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the game (round 1)",
		RunE: run(func(ctx context.Context, c *cl.Client, roomID, password string) (game.Room, error) {
			return c.StartGame(ctx, roomID, password)
		}),
	})

	step := &cobra.Command{
		Use:   "step <step> <index>",
		Short: "Advance to a step (mini_game, info_purchase, info_negotiation, investment, result)",
		Args:  cobra.ExactArgs(2),
	}
	step.RunE = func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("index must be an integer")
		}
		return run(func(ctx context.Context, c *cl.Client, roomID, password string) (game.Room, error) {
			return c.AdvanceStep(ctx, roomID, password, game.GameStep(args[0]), idx)
		})(cmd, args)
	}
	admin.AddCommand(step)

	admin.AddCommand(&cobra.Command{
		Use:   "round",
		Short: "Advance to the next round (or finish)",
		RunE: run(func(ctx context.Context, c *cl.Client, roomID, password string) (game.Room, error) {
			return c.AdvanceRound(ctx, roomID, password)
		}),
	})

	admin.AddCommand(&cobra.Command{
		Use:   "confirm",
		Short: "Settle the round: liquidate every portfolio",
		RunE: run(func(ctx context.Context, c *cl.Client, roomID, password string) (game.Room, error) {
			return c.ConfirmInvestment(ctx, roomID, password)
		}),
	})

	admin.AddCommand(&cobra.Command{
		Use:   "reveal",
		Short: "Reveal the settled results to all teams",
		RunE: run(func(ctx context.Context, c *cl.Client, roomID, password string) (game.Room, error) {
			return c.RevealResults(ctx, roomID, password)
		}),
	})

	admin.AddCommand(&cobra.Command{
		Use:   "lock",
		Short: "Lock trading",
		RunE: run(func(ctx context.Context, c *cl.Client, roomID, password string) (game.Room, error) {
			return c.SetInvestmentLock(ctx, roomID, password, true)
		}),
	})

	admin.AddCommand(&cobra.Command{
		Use:   "unlock",
		Short: "Unlock trading",
		RunE: run(func(ctx context.Context, c *cl.Client, roomID, password string) (game.Room, error) {
			return c.SetInvestmentLock(ctx, roomID, password, false)
		}),
	})

	timer := &cobra.Command{
		Use:   "timer <start|stop> [seconds]",
		Short: "Control the shared countdown",
		Args:  cobra.RangeArgs(1, 2),
	}
	timer.RunE = func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, c *cl.Client, roomID, password string) (game.Room, error) {
			switch args[0] {
			case "start":
				if len(args) < 2 {
					return game.Room{}, fmt.Errorf("timer start needs seconds")
				}
				seconds, err := strconv.Atoi(args[1])
				if err != nil {
					return game.Room{}, fmt.Errorf("seconds must be an integer")
				}
				return c.StartTimer(ctx, roomID, password, seconds)
			case "stop":
				return c.StopTimer(ctx, roomID, password)
			default:
				return game.Room{}, fmt.Errorf("action must be start or stop")
			}
		})(cmd, args)
	}
	admin.AddCommand(timer)

	grant := &cobra.Command{
		Use:   "grant <team-number> <card-id>",
		Short: "Grant an information card to a team",
		Args:  cobra.ExactArgs(2),
	}
	grant.RunE = func(cmd *cobra.Command, args []string) error {
		teamNumber, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("team number must be an integer")
		}
		return run(func(ctx context.Context, c *cl.Client, roomID, password string) (game.Room, error) {
			return c.GrantInfo(ctx, roomID, password, teamNumber, args[1])
		})(cmd, args)
	}
	admin.AddCommand(grant)

	return admin
}
