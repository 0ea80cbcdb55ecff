/*
export.go - Admin XLSX statistics export

PURPOSE:
  Produces a spreadsheet of every user's progression: one row per user
  with counters, XP, level, and coin figures. Meant for the operator,
  not the mini-app.

SEE ALSO:
  - server.go: Mounted at GET /api/admin/export
*/
package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/warp/quest-engine/progression"
)

var exportHeader = []string{
	"User ID", "Username", "Level", "XP",
	"Completed Easy", "Completed Medium", "Completed Hard",
	"Failed Easy", "Failed Medium", "Failed Hard",
	"Coin Balance", "Lifetime Coins", "Lifetime XP", "Purchases",
}

// ExportStats streams an XLSX workbook with one row per user.
func (h *Handler) ExportStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.Users.ListUsers(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Statistics"
	f.SetSheetName("Sheet1", sheet)

	for col, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, title)
	}

	for i, u := range users {
		snap, err := h.Ledger.Snapshot(ctx, u.ID)
		if err != nil {
			log.Printf("[Export] skipping user %s: %v", u.ID, err)
			continue
		}
		values := []any{
			string(u.ID), u.Username, snap.Level, snap.XP,
			snap.Completed[progression.DifficultyEasy],
			snap.Completed[progression.DifficultyMedium],
			snap.Completed[progression.DifficultyHard],
			snap.Failed[progression.DifficultyEasy],
			snap.Failed[progression.DifficultyMedium],
			snap.Failed[progression.DifficultyHard],
			snap.CoinBalance, snap.LifetimeCoins, snap.LifetimeXP, snap.Purchases,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	filename := fmt.Sprintf("statistics-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := f.Write(w); err != nil {
		log.Printf("[Export] write error: %v", err)
	}
}
