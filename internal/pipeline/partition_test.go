package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"go-ocr-throughput/internal/model"
	"go-ocr-throughput/pkg/utils"
)

func fakeJobs(n int) []model.Job {
	jobs := make([]model.Job, n)
	for i := range jobs {
		jobs[i] = model.Job(fmt.Sprintf("/img/%03d.jpg", i))
	}
	return jobs
}

func TestPartitionChunkLaw(t *testing.T) {
	for m := 0; m <= 25; m++ {
		for n := 1; n <= 8; n++ {
			jobs := fakeJobs(m)
			batches := Partition(jobs, n)

			if m == 0 {
				assert.Empty(t, batches, "m=%d n=%d", m, n)
				continue
			}

			size := utils.CeilDiv(m, n)
			assert.LessOrEqual(t, len(batches), n, "m=%d n=%d", m, n)
			if m < n {
				assert.Len(t, batches, m, "m=%d n=%d", m, n)
			}

			// disjoint, ordered cover of the input
			var joined []model.Job
			for i, b := range batches {
				assert.Equal(t, i, b.Index)
				assert.NotEmpty(t, b.Jobs)
				if i < len(batches)-1 {
					assert.Len(t, b.Jobs, size, "m=%d n=%d batch=%d", m, n, i)
				} else {
					assert.LessOrEqual(t, len(b.Jobs), size)
				}
				joined = append(joined, b.Jobs...)
			}
			assert.Equal(t, jobs, joined, "m=%d n=%d", m, n)
		}
	}
}

func TestPartitionTwelveIntoThree(t *testing.T) {
	batches := Partition(fakeJobs(12), 3)
	if assert.Len(t, batches, 3) {
		for _, b := range batches {
			assert.Len(t, b.Jobs, 4)
		}
	}
}

func TestPartitionBatchesDoNotAlias(t *testing.T) {
	jobs := fakeJobs(4)
	batches := Partition(jobs, 2)
	batches[0].Jobs = append(batches[0].Jobs, "/img/extra.jpg")
	assert.Equal(t, model.Job("/img/002.jpg"), batches[1].Jobs[0])
}

func TestPartitionInvalidCount(t *testing.T) {
	assert.Nil(t, Partition(fakeJobs(3), 0))
}
