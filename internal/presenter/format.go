// Package presenter turns bot results into KakaoTalk messages and sends room announcements.
package presenter

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/park285/codeforces-potd-bot/internal/domain"
	"github.com/park285/codeforces-potd-bot/internal/leaderboard"
	"github.com/park285/codeforces-potd-bot/internal/msgcat"
	"github.com/park285/codeforces-potd-bot/internal/registry"
	"github.com/park285/codeforces-potd-bot/internal/render"
)

const profileURL = "https://codeforces.com/profile/"

type Formatter struct {
	cat     *msgcat.Catalog
	prefix  string
	printer *message.Printer
}

func NewFormatter(cat *msgcat.Catalog, prefix string) *Formatter {
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	return &Formatter{cat: cat, prefix: prefix, printer: message.NewPrinter(language.English)}
}

// Text renders key with data; the command prefix is available to every template.
func (f *Formatter) Text(key string, data map[string]any) string {
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["Prefix"]; !ok {
		data["Prefix"] = f.prefix
	}
	return f.cat.Text(key, data)
}

// Number formats n with thousands separators.
func (f *Formatter) Number(n int) string { return f.printer.Sprintf("%d", n) }

func (f *Formatter) POTD(p *domain.POTD, contestName string) string {
	return f.Text("potd.announce", map[string]any{
		"Date":    p.Date,
		"Name":    p.Name,
		"Rating":  f.Number(p.Rating),
		"Contest": contestName,
		"Link":    p.Key().URL(),
	})
}

func (f *Formatter) Solved(p *domain.POTD, reg domain.Registration) string {
	return f.Text("potd.solved", map[string]any{"Handle": reg.Handle, "Date": p.Date})
}

// Profile renders key (handle.current, handle.set, register.success) for a member.
func (f *Formatter) Profile(key, name string, p *registry.Profile) string {
	data := map[string]any{
		"Name":   name,
		"Handle": p.Registration.Handle,
		"Rank":   "unrated",
		"Rating": "0",
		"Link":   profileURL + p.Registration.Handle,
	}
	if p.User != nil {
		data["Rank"] = p.User.RankOrUnrated()
		data["Rating"] = f.Number(p.User.Rating)
	}
	return f.Text(key, data)
}

func (f *Formatter) boardKeys(kind leaderboard.Kind) (title, row, cardTitle, cardValue string) {
	if kind == leaderboard.KindStreak {
		return "leaderboard.streak_title", "leaderboard.streak_row", "leaderboard.card_streak_title", "leaderboard.card_streak_value"
	}
	return "leaderboard.solves_title", "leaderboard.solves_row", "leaderboard.card_solves_title", "leaderboard.card_solves_value"
}

// Leaderboard renders the ranking as one message folded behind "see more".
func (f *Formatter) Leaderboard(kind leaderboard.Kind, entries []leaderboard.Entry) string {
	titleKey, rowKey, _, _ := f.boardKeys(kind)
	title := f.Text(titleKey, nil)
	if len(entries) == 0 {
		return title + "\n" + f.Text("leaderboard.empty", nil)
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteByte('\n')
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.Text(rowKey, map[string]any{"Rank": e.Rank, "Handle": e.Handle, "Count": f.Number(e.Count)}))
	}
	body := stripHeader(b.String(), title)
	return seeMore(body, title+" - "+f.Text("leaderboard.see_more", nil))
}

// LeaderboardCard renders the ranking as a PNG card.
func (f *Formatter) LeaderboardCard(kind leaderboard.Kind, entries []leaderboard.Entry) ([]byte, error) {
	_, _, titleKey, valueKey := f.boardKeys(kind)
	rows := make([]render.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, render.Row{
			Rank:   e.Rank,
			Handle: e.Handle,
			Value:  f.Text(valueKey, map[string]any{"Count": f.Number(e.Count)}),
		})
	}
	return render.LeaderboardPNG(f.Text(titleKey, nil), rows)
}
