// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package contentdirectory

import (
	"github.com/syncthing/dlna/lib/scpd"
)

func browseArgs(extraIn ...scpd.Argument) []scpd.Argument {
	args := append([]scpd.Argument(nil), extraIn...)
	return append(args,
		scpd.InArg("Filter", "A_ARG_TYPE_Filter"),
		scpd.InArg("StartingIndex", "A_ARG_TYPE_Index"),
		scpd.InArg("RequestedCount", "A_ARG_TYPE_Count"),
		scpd.InArg("SortCriteria", "A_ARG_TYPE_SortCriteria"),
		scpd.OutArg("Result", "A_ARG_TYPE_Result"),
		scpd.OutArg("NumberReturned", "A_ARG_TYPE_Count"),
		scpd.OutArg("TotalMatches", "A_ARG_TYPE_Count"),
		scpd.OutArg("UpdateID", "A_ARG_TYPE_UpdateID"),
	)
}

// Actions returns the service's action table.
func Actions() []scpd.Action {
	return []scpd.Action{
		{Name: "GetSystemUpdateID", Arguments: []scpd.Argument{scpd.OutArg("Id", "SystemUpdateID")}},
		{Name: "GetSearchCapabilities", Arguments: []scpd.Argument{scpd.OutArg("SearchCaps", "SearchCapabilities")}},
		{Name: "GetSortCapabilities", Arguments: []scpd.Argument{scpd.OutArg("SortCaps", "SortCapabilities")}},
		{Name: "GetSortExtensionCapabilities", Arguments: []scpd.Argument{scpd.OutArg("SortExtensionCaps", "SortExtensionCapabilities")}},
		{Name: "X_GetFeatureList", Arguments: []scpd.Argument{scpd.OutArg("FeatureList", "A_ARG_TYPE_Featurelist")}},
		{
			Name: "Search",
			Arguments: browseArgs(
				scpd.InArg("ContainerID", "A_ARG_TYPE_ObjectID"),
				scpd.InArg("SearchCriteria", "A_ARG_TYPE_SearchCriteria"),
			),
		},
		{
			Name: "Browse",
			Arguments: browseArgs(
				scpd.InArg("ObjectID", "A_ARG_TYPE_ObjectID"),
				scpd.InArg("BrowseFlag", "A_ARG_TYPE_BrowseFlag"),
			),
		},
		{
			Name: "X_BrowseByLetter",
			Arguments: []scpd.Argument{
				scpd.InArg("ObjectID", "A_ARG_TYPE_ObjectID"),
				scpd.InArg("BrowseFlag", "A_ARG_TYPE_BrowseFlag"),
				scpd.InArg("Filter", "A_ARG_TYPE_Filter"),
				scpd.InArg("StartingLetter", "A_ARG_TYPE_BrowseLetter"),
				scpd.InArg("RequestedCount", "A_ARG_TYPE_Count"),
				scpd.InArg("SortCriteria", "A_ARG_TYPE_SortCriteria"),
				scpd.OutArg("Result", "A_ARG_TYPE_Result"),
				scpd.OutArg("NumberReturned", "A_ARG_TYPE_Count"),
				scpd.OutArg("TotalMatches", "A_ARG_TYPE_Count"),
				scpd.OutArg("UpdateID", "A_ARG_TYPE_UpdateID"),
				scpd.OutArg("StartingIndex", "A_ARG_TYPE_Index"),
			},
		},
		{
			Name: "X_SetBookmark",
			Arguments: []scpd.Argument{
				scpd.InArg("CategoryType", "A_ARG_TYPE_CategoryType"),
				scpd.InArg("RID", "A_ARG_TYPE_RID"),
				scpd.InArg("ObjectID", "A_ARG_TYPE_ObjectID"),
				scpd.InArg("PosSecond", "A_ARG_TYPE_PosSec"),
			},
		},
	}
}

func StateVariables() []scpd.StateVariable {
	return []scpd.StateVariable{
		{Name: "A_ARG_TYPE_Filter", DataType: scpd.DataTypeString},
		{Name: "A_ARG_TYPE_SortCriteria", DataType: scpd.DataTypeString},
		{Name: "A_ARG_TYPE_Index", DataType: scpd.DataTypeUI4},
		{Name: "A_ARG_TYPE_Count", DataType: scpd.DataTypeUI4},
		{Name: "A_ARG_TYPE_UpdateID", DataType: scpd.DataTypeUI4},
		{Name: "SearchCapabilities", DataType: scpd.DataTypeString},
		{Name: "SortCapabilities", DataType: scpd.DataTypeString},
		{Name: "SortExtensionCapabilities", DataType: scpd.DataTypeString},
		{Name: "SystemUpdateID", DataType: scpd.DataTypeUI4, SendsEvents: true},
		{Name: "A_ARG_TYPE_SearchCriteria", DataType: scpd.DataTypeString},
		{Name: "A_ARG_TYPE_Result", DataType: scpd.DataTypeString},
		{Name: "A_ARG_TYPE_ObjectID", DataType: scpd.DataTypeString},
		{
			Name:          "A_ARG_TYPE_BrowseFlag",
			DataType:      scpd.DataTypeString,
			AllowedValues: []string{BrowseMetadata, BrowseDirectChildren},
		},
		{Name: "A_ARG_TYPE_BrowseLetter", DataType: scpd.DataTypeString},
		{Name: "A_ARG_TYPE_CategoryType", DataType: scpd.DataTypeUI4},
		{Name: "A_ARG_TYPE_RID", DataType: scpd.DataTypeUI4},
		{Name: "A_ARG_TYPE_PosSec", DataType: scpd.DataTypeUI4},
		{Name: "A_ARG_TYPE_Featurelist", DataType: scpd.DataTypeString},
	}
}

func Description() (string, error) {
	return scpd.Build(Actions(), StateVariables())
}
