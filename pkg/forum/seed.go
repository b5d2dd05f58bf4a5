package forum

import (
	"math/rand"

	"github.com/pressboard/pressboard/pkg/config"
)

var sampleComments = []string{
	"Lorem ipsum dolor sit amet, consectetur adipiscing elit.<br><br>Praesent interdum vitae ante non accumsan.",
	"Phasellus aliquam molestie maximus. Mauris porttitor aliquam velit a tristique.<br><br>Morbi iaculis sem et mauris rhoncus, in mattis ipsum dapibus.",
	"Fusce eleifend luctus elit.<br>Donec massa lectus, porta sed pellentesque vel, dignissim sed dui.",
	"Sed eget arcu nunc.<br>Nam sed rhoncus velit, in hendrerit nulla.<br>Vivamus dapibus eleifend libero, vitae efficitur elit varius ut.",
}

const sampleSubject = "Green Is My Pepper"

// Seed populates the forum with sample threads and replies, mirroring
// the reference implementation's demo data generator. It is meant to be
// called once, right after New, behind an explicit opt-in flag.
func Seed(f *Forum, nthreads, postsPerThread int, rng *rand.Rand) error {
	for i := 0; i < nthreads; i++ {
		draft := PostDraft{
			Comment:  sampleComments[rng.Intn(len(sampleComments))],
			Filename: config.PlaceholderImage,
		}
		threadID, err := f.CreateThread(sampleSubject, draft)
		if err != nil {
			return err
		}

		for j := 0; j < postsPerThread; j++ {
			replyDraft := PostDraft{Comment: sampleComments[rng.Intn(len(sampleComments))]}
			if rng.Intn(2) == 0 {
				replyDraft.Filename = config.PlaceholderImage
			}
			if _, err := f.CreatePost(threadID, replyDraft); err != nil {
				return err
			}
		}
	}
	return nil
}
