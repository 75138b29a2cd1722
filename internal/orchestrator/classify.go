package orchestrator

import "github.com/alanyoungcy/policast/internal/domain"

// ClassifyBatch decides the outcome of a bundle of submitted calls whose
// first call is the approval. Wallets disagree on how many receipts they
// report, so every count is handled:
//
//   - 0 receipts: success only if the bundle status is success.
//   - 1 receipt for a multi-call bundle: a successful bundle status wins;
//     otherwise the receipt decides between partial (approval landed) and
//     failure.
//   - 2 receipts: a failed approval is a failure whatever the action did;
//     otherwise the action decides between success and partial.
//   - more: all succeeded is success, some is partial, none is failure.
//
// A bundle still pending classifies as pending.
func ClassifyBatch(status domain.BatchSubmissionResult, submitted int) domain.Outcome {
	if status.Status == domain.BatchPending {
		return domain.OutcomePending
	}
	rs := status.Receipts
	switch len(rs) {
	case 0:
		if status.Status == domain.BatchSuccess {
			return domain.OutcomeSuccess
		}
		return domain.OutcomeFailure
	case 1:
		if submitted <= 1 {
			if rs[0].Succeeded {
				return domain.OutcomeSuccess
			}
			return domain.OutcomeFailure
		}
		if status.Status == domain.BatchSuccess {
			return domain.OutcomeSuccess
		}
		if rs[0].Succeeded {
			return domain.OutcomePartial
		}
		return domain.OutcomeFailure
	case 2:
		if !rs[0].Succeeded {
			return domain.OutcomeFailure
		}
		if rs[1].Succeeded {
			return domain.OutcomeSuccess
		}
		return domain.OutcomePartial
	default:
		ok := 0
		for _, r := range rs {
			if r.Succeeded {
				ok++
			}
		}
		switch {
		case ok == len(rs):
			return domain.OutcomeSuccess
		case ok > 0:
			return domain.OutcomePartial
		default:
			return domain.OutcomeFailure
		}
	}
}
