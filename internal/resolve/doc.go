// Package resolve implements the cross-file and type-traced Resolvers: Pass
// 2 (import-chain resolution of strong-tier refs), Pass 3 (type-traced
// member access resolution), and Pass 4 (config-file reference resolution).
// Each pass only ever promotes a RefFact's tier, never demotes it, per the
// resolution-ordering invariant Pass 1 (the Structural Extractor) already
// established.
package resolve
