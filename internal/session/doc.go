// Package session is the public face of foxmirror.
//
// A Session opens a Places database, loads a disposable mirror of it and
// exposes the mirror for reads and edits. Nothing reaches the origin until
// Commit, which backs the origin up first. Close discards the mirror.
//
//	s, err := session.Connect(ctx, session.Options{OriginPath: path})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	s.Update(ctx, queryir.Update{
//		Filter:      queryir.Contains{Field: "url", Substring: "wikipedia.org"},
//		Assignments: []queryir.Assignment{queryir.Replace{Field: "title", Old: "Wikipedia", New: "Wikikipedia"}},
//	})
//	s.Commit(ctx)
package session
