// README: Opaque entity identifier shared by all modules.
package types

type ID string

func (id ID) String() string { return string(id) }
