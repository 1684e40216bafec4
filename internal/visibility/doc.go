// Package visibility decides how much of a course roster a viewer may see and
// which enrollments count toward messageability.
package visibility
