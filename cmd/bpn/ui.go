package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/mdp/qrterminal/v3"
	"golang.org/x/term"

	"bullpen/internal/game"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptPassword(label string) (string, error) {
	fmt.Printf("%s: ", label)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", fmt.Errorf("%s is required", label)
	}
	return text, nil
}

func printJoinQR(apiBase, roomID string) {
	accent.Printf("Room code: %s\n", roomID)
	neutral.Println("Scan to open the room:")
	qrterminal.GenerateWithConfig(apiBase+"/v1/rooms/"+roomID, qrterminal.Config{
		Level:     qrterminal.L,
		Writer:    os.Stdout,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	})
}

func renderRoom(room game.Room) {
	accent.Printf("\n%s  [%s]\n", room.Name, room.ID)
	gs := room.GameState
	neutral.Printf("status=%s  round=%d/%d  step=%s\n", gs.CurrentStatus, gs.CurrentRound, room.MaxRounds, gs.CurrentStep)

	flags := []string{}
	if gs.IsInvestmentLocked {
		flags = append(flags, "investment locked")
	}
	if gs.IsInvestmentConfirmed {
		flags = append(flags, "confirmed")
	}
	if gs.RevealedResults {
		flags = append(flags, "results revealed")
	}
	if gs.IsTimerRunning {
		flags = append(flags, fmt.Sprintf("timer %d/%ds", gs.TimerSeconds, gs.TimerMaxSeconds))
	}
	if len(flags) > 0 {
		warn.Println(strings.Join(flags, " | "))
	}

	neutral.Println("\nStocks:")
	for _, s := range gs.Stocks {
		price := game.TradePrice(s, maxInt(gs.CurrentRound, 1))
		fmt.Printf("  %-16s %-26s %12s\n", s.ID, s.Name, formatMoney(price))
	}

	neutral.Println("\nTeams:")
	for _, t := range gs.Teams {
		leader := t.LeaderName
		if leader == "" {
			leader = "(open)"
		}
		fmt.Printf("  team %-2d %-16s cash %14s", t.Number, leader, formatMoney(t.CurrentCash))
		if len(t.Portfolio) > 0 {
			fmt.Printf("  holdings %s", formatPortfolio(t.Portfolio))
		}
		fmt.Println()
		if gs.RevealedResults && len(t.RoundResults) > 0 {
			last := t.RoundResults[len(t.RoundResults)-1]
			profitLine := fmt.Sprintf("    round %d: total %s  profit %.1f%%  cumulative %.1f%%",
				last.Round, formatMoney(last.TotalValue), last.ProfitRate, last.CumulativeProfitRate)
			if last.ProfitRate >= 0 {
				success.Println(profitLine)
			} else {
				danger.Println(profitLine)
			}
		}
	}
}

func renderReport(report game.Report) {
	accent.Printf("\nAdvisory report (score %d/100)\n", report.Score)
	neutral.Println(report.Summary)
	for _, s := range report.Strengths {
		success.Println("  + " + s)
	}
	for _, s := range report.Weaknesses {
		danger.Println("  - " + s)
	}
	for _, s := range report.Recommendations {
		warn.Println("  > " + s)
	}
	for _, s := range report.CardAnalysis {
		neutral.Println("  * " + s)
	}
}

func formatPortfolio(p map[string]int64) string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s x%d", id, p[id]))
	}
	return strings.Join(parts, ", ")
}

func formatMoney(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := fmt.Sprintf("%d", v)
	var b strings.Builder
	for i, d := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return sign + b.String()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
