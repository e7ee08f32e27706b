package store

import (
	"sort"

	"github.com/ahmatkosso56-cloud/kosso/internal/models"
)

// SortQueue orders tickets urgent-first, then oldest-first. The sort is
// stable so equal timestamps keep their insertion order.
func SortQueue(tickets []models.Ticket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		if tickets[i].IsUrgent != tickets[j].IsUrgent {
			return tickets[i].IsUrgent
		}
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
}

// ComputeWaitEstimates fills WaitMinutes on an ordered queue: each entry gets
// the sum of the average handling minutes of everything ahead of it.
func ComputeWaitEstimates(tickets []models.Ticket) {
	total := 0
	for i := range tickets {
		tickets[i].WaitMinutes = total
		total += tickets[i].AvgMinutes
	}
}
