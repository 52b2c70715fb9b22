// Package textutil provides the text helpers shared by output naming and
// metadata search: filename sanitization for rendered book names and title
// fingerprints for ranking catalog results.
package textutil
