package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/engine"
	"github.com/neonslash/neonvault/internal/service"
)

func unixTime(sec int64) string {
	if sec == 0 {
		return "-"
	}
	return time.Unix(sec, 0).UTC().Format("2006-01-02 15:04")
}

func side(yes bool) string {
	if yes {
		return "YES"
	}
	return "NO"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func renderCatalog(w io.Writer, p service.CatalogPage) error {
	category := p.Category
	if category == "" {
		category = "All"
	}
	fmt.Fprintf(w, "%s | %s | page %d/%d | %d markets\n", p.Mode, category, p.Page, max(p.PageCount, 1), p.Total)
	if len(p.Markets) == 0 {
		fmt.Fprintln(w, "  no markets")
		return nil
	}
	return renderMarkets(w, p.Markets)
}

func renderMarkets(w io.Writer, markets []service.MarketJSON) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Category", "Market", "Yes", "No", "Yes%", "State", "Deadline")
	for _, m := range markets {
		table.Append(
			strconv.FormatUint(m.ID, 10),
			m.Category,
			truncate(m.Description, 48),
			strconv.FormatUint(m.TotalYes, 10),
			strconv.FormatUint(m.TotalNo, 10),
			fmt.Sprintf("%d%%", m.YesPercent),
			m.State,
			unixTime(m.Deadline),
		)
	}
	return table.Render()
}

func renderStats(w io.Writer, st engine.MarketStats) error {
	fmt.Fprintf(w, "total %d | active %d | awaiting resolution %d | resolved %d\n",
		st.Total, st.Active, st.AwaitingResolution, st.Resolved)

	categories := make([]string, 0, len(st.ByCategory))
	for c := range st.ByCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	table := tablewriter.NewWriter(w)
	table.Header("Category", "Markets")
	for _, c := range categories {
		table.Append(c, strconv.Itoa(st.ByCategory[c]))
	}
	return table.Render()
}

func renderAccount(w io.Writer, a service.AccountJSON) error {
	lock := "unlocked"
	if a.Locked {
		lock = fmt.Sprintf("locked, %d days left (until %s)", a.DaysLeft, unixTime(a.LockEnd))
	}
	reward := fmt.Sprintf("%.0f%% (%d to go)", a.RewardProgress, a.RewardRemaining)
	if a.RewardEligible {
		reward = "eligible"
	}

	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")
	rows := [][2]string{
		{"User", a.User},
		{"Points", strconv.FormatUint(a.Points, 10)},
		{"Staked", a.Staked},
		{"Staked at", unixTime(a.StakeTimestamp)},
		{"Lock", lock},
		{"Can withdraw", strconv.FormatBool(a.CanWithdraw)},
		{"Allowance", a.Allowance},
		{"Bond", fmt.Sprintf("%.4f", a.ProjectedBond)},
		{"Principal bond", a.PrincipalBond},
		{"Total slashed", a.TotalSlashed},
		{"Tasks completed", strconv.FormatUint(a.TasksCompleted, 10)},
		{"Reward", reward},
		{"Default bet", strconv.FormatUint(a.DefaultBet, 10)},
		{"Owner", strconv.FormatBool(a.IsOwner)},
	}
	for _, r := range rows {
		table.Append(r[0], r[1])
	}
	return table.Render()
}

func renderBets(w io.Writer, bets []service.BetJSON) error {
	if len(bets) == 0 {
		fmt.Fprintln(w, "no bets")
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Header("Market", "Side", "Points", "Claimed", "State")
	for _, b := range bets {
		state := b.State
		if b.Label != "" {
			state = b.Label
		}
		table.Append(
			strconv.FormatUint(b.MarketID, 10),
			side(b.Prediction),
			strconv.FormatUint(b.Amount, 10),
			strconv.FormatBool(b.Claimed),
			state,
		)
	}
	return table.Render()
}

func renderResult(w io.Writer, actor string, r service.ActionResult) error {
	table := tablewriter.NewWriter(w)
	table.Header("Action", "Actor", "Tx", "Block", "Gas")
	table.Append(
		r.Action,
		actor,
		r.TxHash,
		strconv.FormatUint(r.Receipt.BlockNumber, 10),
		strconv.FormatUint(r.Receipt.GasUsed, 10),
	)
	if err := table.Render(); err != nil {
		return err
	}
	if r.Notification.Message != "" {
		fmt.Fprintln(w, r.Notification.Message)
	}
	return nil
}

func renderBlobs(w io.Writer, blobs []domain.BlobInfo) error {
	if len(blobs) == 0 {
		fmt.Fprintln(w, "archive is empty")
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Header("Path", "Kind", "Period", "Size", "Modified")
	var total int64
	for _, b := range blobs {
		total += b.Size
		kind, period := "-", "-"
		if k, p, ok := domain.ParseArchivePath(b.Path); ok {
			kind = string(k)
			period = p.Format("2006-01-02")
			if k == domain.ArchiveMarkets {
				period = p.Format("2006-01")
			}
		}
		table.Append(b.Path, kind, period, strconv.FormatInt(b.Size, 10), b.LastModified.UTC().Format(time.RFC3339))
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d objects, %d bytes\n", len(blobs), total)
	return nil
}

// copyRecords writes up to limit JSONL lines from r, then a summary line.
func copyRecords(w io.Writer, r io.Reader, limit int) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	total := 0
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		total++
		if limit <= 0 || total <= limit {
			fmt.Fprintf(w, "%s\n", line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	if limit > 0 && total > limit {
		fmt.Fprintf(w, "... %d more\n", total-limit)
	}
	fmt.Fprintf(w, "%d records\n", total)
	return nil
}
