package pipeline

import (
	"go-ocr-throughput/internal/model"
	"go-ocr-throughput/pkg/utils"
)

// Partition splits jobs into at most n contiguous batches of
// ceil(len(jobs)/n) jobs each; only the last batch may be smaller. Empty
// batches are never returned, so fewer than n jobs give one batch per job.
func Partition(jobs []model.Job, n int) []model.Batch {
	if len(jobs) == 0 || n < 1 {
		return nil
	}
	size := utils.CeilDiv(len(jobs), n)

	batches := make([]model.Batch, 0, utils.CeilDiv(len(jobs), size))
	for start := 0; start < len(jobs); start += size {
		end := start + size
		if end > len(jobs) {
			end = len(jobs)
		}
		batches = append(batches, model.Batch{
			Index: len(batches),
			Jobs:  jobs[start:end:end],
		})
	}
	return batches
}
