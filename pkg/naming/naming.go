// Package naming centralises every physical name and parameter path the database tier emits.
// Consumers rely on these formats bit for bit; nothing else in the module formats names.
package naming

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	nonAlnum  = regexp.MustCompile(`[^a-z0-9-]+`)
	multiDash = regexp.MustCompile(`-+`)
)

// Attribute names published for every table.
const (
	AttrName = "name"
	AttrArn  = "arn"
)

func sanitizePart(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "_", "-")
	value = strings.ReplaceAll(value, " ", "-")
	value = nonAlnum.ReplaceAllString(value, "-")
	value = multiDash.ReplaceAllString(value, "-")
	value = strings.Trim(value, "-")
	return value
}

// Kebab converts an output identifier to its path segment: a hyphen is inserted before every
// uppercase letter, the result is lowercased and a single leading hyphen is dropped.
//
//	UsersTableName -> users-table-name
func Kebab(id string) string {
	var b strings.Builder
	b.Grow(len(id) + 8)
	for _, r := range id {
		if unicode.IsUpper(r) {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.TrimPrefix(b.String(), "-")
}

// ResourceName returns <app>-<resource>-<env>.
func ResourceName(app, resource, env string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{sanitizePart(app), sanitizePart(resource), sanitizePart(env)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "-")
}

// TableName returns the physical table name <app>-<resource>-<env>, e.g. acorn-pups-users-dev.
func TableName(app, resource, env string) string {
	return ResourceName(app, resource, env)
}

// TableParameterPath returns /<app>/<env>/dynamodb-tables/<resource>/<attr>.
func TableParameterPath(app, env, resource, attr string) string {
	return "/" + strings.Join([]string{app, env, "dynamodb-tables", resource, attr}, "/")
}

// OutputParameterPath returns /<app>/<env>/cfn-outputs/<stack>/<kebab(outputID)>.
func OutputParameterPath(app, env, stack, outputID string) string {
	return "/" + strings.Join([]string{app, env, "cfn-outputs", stack, Kebab(outputID)}, "/")
}

// TableExportName returns the export alias <app>-<resource>-table-<attr>-<env>.
func TableExportName(app, resource, attr, env string) string {
	return strings.Join([]string{app, resource, "table", attr, env}, "-")
}

// TableOutputID returns <Entity>Table<Attr>, e.g. UsersTableName or DeviceUsersTableArn.
func TableOutputID(entity, attr string) string {
	if attr == "" {
		return entity + "Table"
	}
	return entity + "Table" + strings.ToUpper(attr[:1]) + attr[1:]
}

// DashboardName returns <app>-database-<env>.
func DashboardName(app, env string) string {
	return ResourceName(app, "database", env)
}

// StackName returns <app>-db-<env>-<component>, e.g. acorn-pups-db-prod-monitoring.
func StackName(app, env, component string) string {
	return strings.Join([]string{sanitizePart(app), "db", sanitizePart(env), sanitizePart(component)}, "-")
}

// AlarmName returns <app>-<lower(entity)>-<suffix>, e.g. acorn-pups-deviceusers-read-throttle.
func AlarmName(app, entity, suffix string) string {
	return strings.Join([]string{app, strings.ToLower(entity), suffix}, "-")
}
