// Package definition loads world files into world definitions.
//
// A world file is YAML (.yaml, .yml) or CUE (.cue) with the same shape:
//
//	name: arena
//	plugins: [frame, motion]
//	params: {damage: 3}
//	components:
//	  - {name: hp, default: 10}
//	  - {name: enemy}
//	entities:
//	  - {id: goblin, data: {enemy: true}}
//	rules:
//	  - name: combat
//	    on: [attack]
//	    query: [enemy, hp]
//	    do:
//	      - set: {hp: 0}
//	views:
//	  - {name: enemies, count: [enemy]}
//	  - {name: goblin, entity: goblin}
//	  - {name: roster, ids: [enemy]}
//
// Unknown fields are rejected. CUE files are evaluated, required to be
// concrete, and then decoded through the same path as YAML.
package definition
