// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package query inspects free-text questions for fiscal period references
// and recency intent.
//
// A Planner holds an ordered table of PeriodRule values and a recency
// keyword set. Rules are tried in order and the first one that yields a
// year wins:
//
//	planner := query.DefaultPlanner
//	plan := planner.Plan("Acme capital expenditure FY24")
//	// plan.FiscalYear == "2024"
//	// plan.Variants == ["2024", "FY2024", "FY24", ...]
//
// ParseYear and ParseQuarter pull sortable numbers out of the free-text
// fiscal_year and quarter metadata stored on chunks. They return
// Unparsable rather than guessing.
package query
