package service

import (
	"sort"

	"vote-ledger/models"
)

// Results is the outcome of a tally. Counts holds every roster candidate, including
// those with zero votes.
type Results struct {
	Counts   map[string]int `json:"counts"`
	Total    int            `json:"total"`
	Excluded int            `json:"excluded"`
}

// CandidateResult is one row of a ranked result table.
type CandidateResult struct {
	models.Candidate
	Votes int `json:"votes"`
}

// Tally counts sealed votes per candidate. Genesis is skipped and votes for candidates
// outside the roster are left out of the total.
func Tally(blocks []*models.Block, candidates []models.Candidate) Results {
	res := Results{Counts: make(map[string]int, len(candidates))}
	for _, c := range candidates {
		res.Counts[c.ID] = 0
	}

	for _, block := range blocks {
		if block.IsGenesis() {
			continue
		}
		for _, v := range block.Payload {
			if _, ok := res.Counts[v.CandidateID]; !ok {
				res.Excluded++
				continue
			}
			res.Counts[v.CandidateID]++
			res.Total++
		}
	}
	return res
}

// Ranking orders the roster by votes, highest first. Ties keep roster order.
func (r Results) Ranking(candidates []models.Candidate) []CandidateResult {
	rows := make([]CandidateResult, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, CandidateResult{Candidate: c, Votes: r.Counts[c.ID]})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Votes > rows[j].Votes
	})
	return rows
}
