package types

// AdminContext names a course, section or group the caller has already
// authorized. The resolver treats the viewer as having full visibility into
// it for one call.
type AdminContext struct {
	Kind ContextKind
	ID   int64
}

// AdminCourse returns an admin context for a course.
func AdminCourse(id CourseID) *AdminContext {
	return &AdminContext{Kind: ContextCourse, ID: int64(id)}
}

// AdminSection returns an admin context for a course section. The whole
// course of the section is treated as visible.
func AdminSection(id SectionID) *AdminContext {
	return &AdminContext{Kind: ContextSection, ID: int64(id)}
}

// AdminGroup returns an admin context for a group.
func AdminGroup(id GroupID) *AdminContext {
	return &AdminContext{Kind: ContextGroup, ID: int64(id)}
}
