// Package e2e provides end-to-end tests over a clustered notes corpus on disk.
package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CorpusNote is one note in the corpus.
type CorpusNote struct {
	ID      string
	Cluster string
	Title   string
	Body    string
}

// Corpus holds notes grouped into clusters whose vocabularies do not overlap.
type Corpus struct {
	Notes    []CorpusNote
	Clusters map[string][]string // cluster -> note IDs
}

// clusterVocab lists eight words per cluster; no word appears in two clusters.
var clusterVocab = []struct {
	name  string
	words []string
}{
	{"consensus", []string{"raft", "paxos", "quorum", "leader", "follower", "election", "replication", "heartbeat"}},
	{"cooking", []string{"tomato", "basil", "garlic", "oregano", "simmer", "skillet", "olive", "parmesan"}},
	{"astronomy", []string{"nebula", "pulsar", "quasar", "telescope", "galaxy", "redshift", "comet", "orbit"}},
	{"gardening", []string{"compost", "mulch", "seedling", "trellis", "perennial", "pruning", "loam", "irrigation"}},
	{"music", []string{"chord", "melody", "tempo", "harmony", "rhythm", "cadence", "octave", "timbre"}},
	{"finance", []string{"dividend", "equity", "bond", "ledger", "liquidity", "portfolio", "yield", "hedge"}},
}

const letters = "abcdefghijklmnopqrstuvwxyz"

// BuildCorpus returns notesPerCluster notes for each cluster. Note i of a cluster uses six of
// the cluster's eight words plus three words no other note uses, so any two notes of a cluster
// share the cluster name and at least four words, and notes of different clusters share nothing.
func BuildCorpus(notesPerCluster int) *Corpus {
	c := &Corpus{Clusters: make(map[string][]string)}
	for _, cl := range clusterVocab {
		for i := 0; i < notesPerCluster; i++ {
			drop := map[int]bool{(2 * i) % 8: true, (2*i + 1) % 8: true}
			words := make([]string, 0, 9)
			for j, w := range cl.words {
				if !drop[j] {
					words = append(words, w)
				}
			}
			for k := 0; k < 3; k++ {
				words = append(words, uniqueWord(cl.name, i, k))
			}
			id := fmt.Sprintf("%s/note-%s", cl.name, string(letters[i%26]))
			c.Notes = append(c.Notes, CorpusNote{
				ID:      id,
				Cluster: cl.name,
				Title:   cl.name,
				Body:    strings.Join(words, " ") + ".",
			})
			c.Clusters[cl.name] = append(c.Clusters[cl.name], id)
		}
	}
	return c
}

// uniqueWord is an alphabetic token specific to one note.
func uniqueWord(cluster string, note, k int) string {
	return "zz" + cluster[:3] + string(letters[note%26]) + string(letters[k%26]) + "q"
}

// ClusterOf returns the cluster of a note ID.
func (c *Corpus) ClusterOf(id string) string {
	cluster, _, _ := strings.Cut(id, "/")
	return cluster
}

// ClusterWords returns the vocabulary of a cluster.
func ClusterWords(cluster string) []string {
	for _, cl := range clusterVocab {
		if cl.name == cluster {
			return append([]string(nil), cl.words...)
		}
	}
	return nil
}

// ClusterNames returns the cluster names in order.
func (c *Corpus) ClusterNames() []string {
	names := make([]string, 0, len(c.Clusters))
	for name := range c.Clusters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Markdown renders a note as a markdown file.
func Markdown(title, body string) string {
	return "# " + title + "\n\n" + body + "\n"
}

// WriteTo writes every note under dir as <id>.md.
func (c *Corpus) WriteTo(dir string) error {
	for _, n := range c.Notes {
		path := filepath.Join(dir, filepath.FromSlash(n.ID)+".md")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(Markdown(n.Title, n.Body)), 0644); err != nil {
			return err
		}
	}
	return nil
}
