package api

import "github.com/revivelabs/photorestore/internal/models"

// CreditUpdate is the canonical shape for server-reported balances. Nil
// fields were not present in the response and must not overwrite the cached
// snapshot; the client never does its own arithmetic on these.
type CreditUpdate struct {
	Standard               *int
	HD                     *int
	RemainingTodayStandard *int
	RemainingTodayHD       *int
}

// creditFields covers the backend's inconsistent credit vocabulary:
// older routes return a single remaining_credits / remaining_today pair
// scoped to the requested resolution, newer ones split standard and hd.
type creditFields struct {
	RemainingCredits         *int `json:"remaining_credits"`
	RemainingStandardCredits *int `json:"remaining_standard_credits"`
	RemainingHDCredits       *int `json:"remaining_hd_credits"`
	RemainingToday           *int `json:"remaining_today"`
	RemainingTodayStandard   *int `json:"remaining_today_standard"`
	RemainingTodayHD         *int `json:"remaining_today_hd"`
}

// update maps whatever the server sent into the canonical form. Split fields
// win over the single-bucket ones; the single-bucket fields apply to the
// resolution the request was made with.
func (f creditFields) update(res models.Resolution) CreditUpdate {
	var u CreditUpdate

	u.Standard = f.RemainingStandardCredits
	u.HD = f.RemainingHDCredits
	if f.RemainingCredits != nil {
		if res == models.ResolutionHD {
			if u.HD == nil {
				u.HD = f.RemainingCredits
			}
		} else if u.Standard == nil {
			u.Standard = f.RemainingCredits
		}
	}

	u.RemainingTodayStandard = f.RemainingTodayStandard
	u.RemainingTodayHD = f.RemainingTodayHD
	if f.RemainingToday != nil {
		if res == models.ResolutionHD {
			if u.RemainingTodayHD == nil {
				u.RemainingTodayHD = f.RemainingToday
			}
		} else if u.RemainingTodayStandard == nil {
			u.RemainingTodayStandard = f.RemainingToday
		}
	}

	return u
}
